package upload_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
	"streamcorder/internal/infrastructure/monitoring"
	"streamcorder/internal/infrastructure/repositories/memory"
	"streamcorder/internal/infrastructure/upload"
	"streamcorder/pkg/retry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeUploader pops one scripted outcome per attempt; an exhausted
// script means success.
type fakeUploader struct {
	mu       sync.Mutex
	outcomes map[string][]error
	attempts map[string]int
	gate     chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		outcomes: make(map[string][]error),
		attempts: make(map[string]int),
	}
}

func (u *fakeUploader) script(path string, errs ...error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.outcomes[path] = errs
}

func (u *fakeUploader) Upload(ctx context.Context, job *domain.UploadJob) error {
	u.mu.Lock()
	gate := u.gate
	u.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.attempts[job.VideoPath]++
	if errs := u.outcomes[job.VideoPath]; len(errs) > 0 {
		u.outcomes[job.VideoPath] = errs[1:]
		return errs[0]
	}
	return nil
}

func (u *fakeUploader) attemptCount(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.attempts[path]
}

func testConfig() upload.Config {
	return upload.Config{
		Workers:     2,
		QueueSize:   8,
		MaxAttempts: 3,
		Backoff: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

func newQueue(t *testing.T, store ports.UploadJobStore, uploader ports.Uploader, cfg upload.Config) *upload.Queue {
	t.Helper()

	q, err := upload.NewQueue(store, uploader, nil,
		monitoring.NewCollector(prometheus.NewRegistry()), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { q.Shutdown(context.Background()) })
	return q
}

func waitForStatus(t *testing.T, store ports.UploadJobStore, path string, want domain.UploadStatus) *domain.UploadJob {
	t.Helper()

	var job *domain.UploadJob
	require.Eventually(t, func() bool {
		got, err := store.GetByPath(context.Background(), path)
		if err != nil {
			return false
		}
		job = got
		return got.Status == want
	}, 3*time.Second, 10*time.Millisecond, "job for %s never reached %s", path, want)
	return job
}

func TestEnqueue_UploadSucceeds(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	q := newQueue(t, store, uploader, testConfig())

	job, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadQueued, job.Status)

	got := waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadSucceeded)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Empty(t, got.LastError)
}

func TestEnqueue_RetriesTransientFailures(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	uploader.script("/videos/cam1.mp4",
		fmt.Errorf("%w: 503", domain.ErrUploadTransient),
		fmt.Errorf("%w: 503", domain.ErrUploadTransient))
	q := newQueue(t, store, uploader, testConfig())

	_, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)

	got := waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadSucceeded)
	assert.Equal(t, 3, got.AttemptCount)
}

func TestEnqueue_FailsAfterMaxAttempts(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	uploader.script("/videos/cam1.mp4",
		fmt.Errorf("%w: 503", domain.ErrUploadTransient),
		fmt.Errorf("%w: 503", domain.ErrUploadTransient),
		fmt.Errorf("%w: 503", domain.ErrUploadTransient))
	q := newQueue(t, store, uploader, testConfig())

	_, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)

	got := waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadFailed)
	assert.Equal(t, 3, got.AttemptCount)
	assert.Contains(t, got.LastError, "transient")
}

func TestEnqueue_PermanentFailureDoesNotRetry(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	uploader.script("/videos/cam1.mp4", fmt.Errorf("%w: rejected", domain.ErrUploadPermanent))
	q := newQueue(t, store, uploader, testConfig())

	_, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)

	got := waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadFailed)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, 1, uploader.attemptCount("/videos/cam1.mp4"))
}

func TestEnqueue_UnauthorizedFailsImmediately(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	uploader.script("/videos/cam1.mp4", domain.ErrUnauthorized)
	q := newQueue(t, store, uploader, testConfig())

	_, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)

	got := waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadFailed)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestEnqueue_CoalescesActivePath(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	uploader.gate = make(chan struct{})
	q := newQueue(t, store, uploader, testConfig())

	first, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)

	second, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	close(uploader.gate)
	waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadSucceeded)
	assert.Equal(t, 1, uploader.attemptCount("/videos/cam1.mp4"))
}

func TestEnqueue_AfterShutdown(t *testing.T) {
	store := memory.NewUploadJobStore()
	q := newQueue(t, store, newFakeUploader(), testConfig())

	require.NoError(t, q.Shutdown(context.Background()))

	_, err := q.Enqueue(context.Background(), "/videos/cam1.mp4", "cam1")
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestRetry_ResubmitsFailedJobs(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	uploader.script("/videos/cam1.mp4",
		fmt.Errorf("%w: rejected", domain.ErrUploadPermanent))
	q := newQueue(t, store, uploader, testConfig())

	ctx := context.Background()
	_, err := q.Enqueue(ctx, "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)
	waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadFailed)

	// Script is exhausted now, so the retry succeeds.
	requeued, err := q.Retry(ctx, []string{"/videos/cam1.mp4", "/videos/unknown.mp4"})
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	got := waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadSucceeded)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestRetry_SkipsNonFailedJobs(t *testing.T) {
	store := memory.NewUploadJobStore()
	uploader := newFakeUploader()
	q := newQueue(t, store, uploader, testConfig())

	ctx := context.Background()
	_, err := q.Enqueue(ctx, "/videos/cam1.mp4", "cam1")
	require.NoError(t, err)
	waitForStatus(t, store, "/videos/cam1.mp4", domain.UploadSucceeded)

	requeued, err := q.Retry(ctx, []string{"/videos/cam1.mp4"})
	require.NoError(t, err)
	assert.Equal(t, 0, requeued)
}

func TestNewQueue_RecoversInterruptedJobs(t *testing.T) {
	store := memory.NewUploadJobStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, &domain.UploadJob{
		ID: "job-1", VideoPath: "/videos/a.mp4", StreamName: "cam1",
		Status: domain.UploadQueued, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Save(ctx, &domain.UploadJob{
		ID: "job-2", VideoPath: "/videos/b.mp4", StreamName: "cam1",
		Status: domain.UploadUploading, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Save(ctx, &domain.UploadJob{
		ID: "job-3", VideoPath: "/videos/c.mp4", StreamName: "cam1",
		Status: domain.UploadSucceeded, CreatedAt: now, UpdatedAt: now,
	}))

	uploader := newFakeUploader()
	newQueue(t, store, uploader, testConfig())

	waitForStatus(t, store, "/videos/a.mp4", domain.UploadSucceeded)
	waitForStatus(t, store, "/videos/b.mp4", domain.UploadSucceeded)

	// The already-succeeded job is left alone.
	assert.Equal(t, 0, uploader.attemptCount("/videos/c.mp4"))
}
