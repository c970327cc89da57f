package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"jobpilot/config"
)

// newAWSSession builds a session from static keys when configured, otherwise
// from the default credential chain.
func newAWSSession(cfg config.AWSConfig) (*session.Session, error) {
	if cfg.Region == "" {
		return nil, errors.New("AWS region not configured")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// S3SessionStore keeps the storage state as a single S3 object.
type S3SessionStore struct {
	client s3iface.S3API
	bucket string
	key    string
	logger *zap.Logger
}

func NewS3SessionStore(cfg config.AWSConfig, key string, logger *zap.Logger) (*S3SessionStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket not configured")
	}
	sess, err := newAWSSession(cfg)
	if err != nil {
		return nil, err
	}
	return NewS3SessionStoreWithClient(s3.New(sess), cfg.Bucket, key, logger), nil
}

func NewS3SessionStoreWithClient(client s3iface.S3API, bucket, key string, logger *zap.Logger) *S3SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3SessionStore{client: client, bucket: bucket, key: key, logger: logger.Named("s3")}
}

func (s *S3SessionStore) Load(ctx context.Context) ([]byte, bool, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to download session from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session object: %w", err)
	}
	return data, len(data) > 0, nil
}

func (s *S3SessionStore) Save(ctx context.Context, blob []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.key),
		Body:                 bytes.NewReader(blob),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return fmt.Errorf("failed to upload session to S3: %w", err)
	}
	s.logger.Info("Session uploaded", zap.String("bucket", s.bucket), zap.String("key", s.key))
	return nil
}
