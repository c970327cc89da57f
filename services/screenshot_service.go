package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/driver"
)

const (
	screenshotPrefix  = "screenshots/"
	screenshotTimeout = 10 * time.Second
	presignTTL        = time.Hour
)

var ErrScreenshotNotFound = errors.New("screenshot not found")

// ScreenshotStore keeps PNG captures under slash-separated keys.
type ScreenshotStore interface {
	Put(ctx context.Context, key string, png []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Presigner is implemented by stores that can hand out a direct link.
type Presigner interface {
	PresignURL(key string, ttl time.Duration) (string, error)
}

// validScreenshotKey rejects keys that would escape the screenshot prefix.
func validScreenshotKey(key string) bool {
	if key == "" || path.IsAbs(key) {
		return false
	}
	clean := path.Clean(key)
	return clean == key && filepath.IsLocal(filepath.FromSlash(key)) &&
		len(clean) > len(screenshotPrefix) && clean[:len(screenshotPrefix)] == screenshotPrefix
}

// ScreenshotService captures the page an application failed on.
type ScreenshotService struct {
	store  ScreenshotStore
	logger *zap.Logger
	now    func() time.Time
}

func NewScreenshotService(store ScreenshotStore, logger *zap.Logger) *ScreenshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScreenshotService{store: store, logger: logger.Named("screenshots"), now: time.Now}
}

// Capture stores a full-page capture named after id and returns its key.
// Capture problems are logged and yield an empty key.
func (s *ScreenshotService) Capture(ctx context.Context, page driver.Page, id string) string {
	if s == nil || s.store == nil || page == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	png, err := page.Screenshot(ctx)
	if err != nil {
		s.logger.Warn("Failed to take screenshot", zap.String("id", id), zap.Error(err))
		return ""
	}
	key := fmt.Sprintf("%s%s/%s.png", screenshotPrefix, s.now().UTC().Format("2006-01-02"), id)
	if err := s.store.Put(ctx, key, png); err != nil {
		s.logger.Warn("Failed to store screenshot", zap.String("key", key), zap.Error(err))
		return ""
	}
	s.logger.Info("Screenshot saved", zap.String("key", key), zap.Int("bytes", len(png)))
	return key
}

// FileScreenshotStore writes captures below a local directory.
type FileScreenshotStore struct {
	dir string
}

func NewFileScreenshotStore(dir string) *FileScreenshotStore {
	return &FileScreenshotStore{dir: dir}
}

func (f *FileScreenshotStore) path(key string) (string, error) {
	if !validScreenshotKey(key) {
		return "", fmt.Errorf("%w: invalid key %q", ErrScreenshotNotFound, key)
	}
	return filepath.Join(f.dir, filepath.FromSlash(key)), nil
}

func (f *FileScreenshotStore) Put(ctx context.Context, key string, png []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	return os.WriteFile(p, png, 0o644)
}

func (f *FileScreenshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrScreenshotNotFound
	}
	return data, err
}

// S3ScreenshotStore uploads captures to the configured bucket.
type S3ScreenshotStore struct {
	client s3iface.S3API
	bucket string
}

func NewS3ScreenshotStore(cfg config.AWSConfig) (*S3ScreenshotStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket not configured")
	}
	sess, err := newAWSSession(cfg)
	if err != nil {
		return nil, err
	}
	return NewS3ScreenshotStoreWithClient(s3.New(sess), cfg.Bucket), nil
}

func NewS3ScreenshotStoreWithClient(client s3iface.S3API, bucket string) *S3ScreenshotStore {
	return &S3ScreenshotStore{client: client, bucket: bucket}
}

func (s *S3ScreenshotStore) Put(ctx context.Context, key string, png []byte) error {
	if !validScreenshotKey(key) {
		return fmt.Errorf("invalid screenshot key %q", key)
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(png),
		ContentType:          aws.String("image/png"),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return fmt.Errorf("failed to upload screenshot to S3: %w", err)
	}
	return nil
}

func (s *S3ScreenshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !validScreenshotKey(key) {
		return nil, ErrScreenshotNotFound
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrScreenshotNotFound
		}
		return nil, fmt.Errorf("failed to download screenshot: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// PresignURL returns a time-limited GET link for key.
func (s *S3ScreenshotStore) PresignURL(key string, ttl time.Duration) (string, error) {
	if !validScreenshotKey(key) {
		return "", ErrScreenshotNotFound
	}
	if ttl <= 0 {
		ttl = presignTTL
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return req.Presign(ttl)
}
