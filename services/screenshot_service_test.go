package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobpilot/driver/drivertest"
	"jobpilot/models"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func fixedScreenshots(t *testing.T, store ScreenshotStore) *ScreenshotService {
	s := NewScreenshotService(store, zaptest.NewLogger(t))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestScreenshotService_Capture(t *testing.T) {
	store := NewFileScreenshotStore(t.TempDir())
	s := fixedScreenshots(t, store)
	page := drivertest.NewPage("https://jobs.example.com/jobs/view/1/")
	page.Shot = pngBytes

	key := s.Capture(context.Background(), page, "abc")
	assert.Equal(t, "screenshots/2026-03-01/abc.png", key)

	data, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestScreenshotService_CaptureFailureYieldsNoKey(t *testing.T) {
	s := fixedScreenshots(t, NewFileScreenshotStore(t.TempDir()))
	page := drivertest.NewPage("about:blank")
	page.ShotErr = errors.New("target closed")

	assert.Empty(t, s.Capture(context.Background(), page, "abc"))
	assert.Equal(t, 1, page.Shots)
}

func TestScreenshotService_NilIsDisabled(t *testing.T) {
	var s *ScreenshotService
	page := drivertest.NewPage("about:blank")
	assert.Empty(t, s.Capture(context.Background(), page, "abc"))
	assert.Zero(t, page.Shots)
}

func TestFileScreenshotStore_Keys(t *testing.T) {
	store := NewFileScreenshotStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Get(ctx, "screenshots/2026-03-01/missing.png")
	assert.ErrorIs(t, err, ErrScreenshotNotFound)

	for _, key := range []string{
		"",
		"/etc/passwd",
		"screenshots/../../etc/passwd",
		"other/abc.png",
		"screenshots/",
	} {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrScreenshotNotFound, key)
		assert.Error(t, store.Put(ctx, key, pngBytes), key)
	}
}

func TestS3ScreenshotStore(t *testing.T) {
	client := &fakeS3{}
	store := NewS3ScreenshotStoreWithClient(client, "bucket")
	ctx := context.Background()

	_, err := store.Get(ctx, "screenshots/2026-03-01/abc.png")
	assert.ErrorIs(t, err, ErrScreenshotNotFound)

	require.NoError(t, store.Put(ctx, "screenshots/2026-03-01/abc.png", pngBytes))
	data, err := store.Get(ctx, "screenshots/2026-03-01/abc.png")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	require.Len(t, client.puts, 1)
	assert.Equal(t, "image/png", *client.puts[0].ContentType)
}

func TestWorkflow_FailureIsScreenshotted(t *testing.T) {
	store := NewFileScreenshotStore(t.TempDir())
	page := drivertest.NewPage("about:blank")
	page.Shot = pngBytes
	w := newTestWorkflow(t, newFakeWorkspace(page), testWorkflowConfig()).
		WithScreenshots(fixedScreenshots(t, store))

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.FailedNoApplyControl, out.Kind)
	assert.Equal(t, "screenshots/2026-03-01/"+out.ID+".png", out.Screenshot)
	data, err := store.Get(context.Background(), out.Screenshot)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestWorkflow_SuccessIsNotScreenshotted(t *testing.T) {
	site := newJobSite(true)
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig()).
		WithScreenshots(fixedScreenshots(t, NewFileScreenshotStore(t.TempDir())))

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.Empty(t, out.Screenshot)
	assert.Zero(t, site.page.Shots)
}
