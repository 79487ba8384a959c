package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
	"streamcorder/internal/infrastructure/monitoring"
	"streamcorder/pkg/retry"
	"streamcorder/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config bounds the queue's worker pool and retry policy.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     retry.Config
}

// Queue is the durable, retrying upload pipeline. Jobs are persisted
// before they are worked on, so a crash mid-upload re-queues the job on
// the next start instead of losing it.
type Queue struct {
	store       ports.UploadJobStore
	uploader    ports.Uploader
	broadcaster ports.Broadcaster
	metrics     *monitoring.Collector
	cfg         Config

	work chan *domain.UploadJob

	// inFlight coalesces enqueues: one active job per video path.
	inFlight map[string]struct{}
	mu       sync.Mutex
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.SugaredLogger
}

// NewQueue starts the worker pool and re-queues every job that was
// Queued or Uploading when the previous process exited.
func NewQueue(
	store ports.UploadJobStore,
	uploader ports.Uploader,
	broadcaster ports.Broadcaster,
	metrics *monitoring.Collector,
	cfg Config,
	logger *zap.SugaredLogger,
) (*Queue, error) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:       store,
		uploader:    uploader,
		broadcaster: broadcaster,
		metrics:     metrics,
		cfg:         cfg,
		work:        make(chan *domain.UploadJob, cfg.QueueSize),
		inFlight:    make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}

	if err := q.recover(ctx); err != nil {
		cancel()
		return nil, err
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q, nil
}

// recover re-queues jobs interrupted by a previous shutdown or crash.
func (q *Queue) recover(ctx context.Context) error {
	var pending []*domain.UploadJob
	for _, status := range []domain.UploadStatus{domain.UploadQueued, domain.UploadUploading} {
		jobs, err := q.store.ListByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("recover %s jobs: %w", status, err)
		}
		pending = append(pending, jobs...)
	}

	for _, job := range pending {
		job.Status = domain.UploadQueued
		job.UpdatedAt = time.Now()
		if err := q.store.Save(ctx, job); err != nil {
			return fmt.Errorf("re-queue job %s: %w", job.ID, err)
		}
		q.mu.Lock()
		q.inFlight[job.VideoPath] = struct{}{}
		q.mu.Unlock()

		select {
		case q.work <- job:
		default:
			return fmt.Errorf("re-queue job %s: %w", job.ID, domain.ErrQueueFull)
		}
	}

	if len(pending) > 0 {
		q.logger.Infow("recovered interrupted upload jobs", "count", len(pending))
	}
	return nil
}

// Enqueue submits a video for upload. Re-enqueueing a path that already
// has an active job returns that job instead of creating a duplicate.
func (q *Queue) Enqueue(ctx context.Context, videoPath, streamName string) (*domain.UploadJob, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, domain.ErrQueueClosed
	}
	if _, active := q.inFlight[videoPath]; active {
		q.mu.Unlock()
		return q.store.GetByPath(ctx, videoPath)
	}
	q.inFlight[videoPath] = struct{}{}
	q.mu.Unlock()

	now := time.Now()
	job := &domain.UploadJob{
		ID:         uuid.New().String(),
		VideoPath:  videoPath,
		StreamName: streamName,
		Status:     domain.UploadQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := q.store.Save(ctx, job); err != nil {
		q.release(videoPath)
		return nil, err
	}

	select {
	case q.work <- job:
	default:
		q.release(videoPath)
		q.failJob(ctx, job, domain.ErrQueueFull.Error(), "queue_full")
		return nil, domain.ErrQueueFull
	}

	q.logger.Infow("upload queued", "path", videoPath, "stream", streamName, "job_id", job.ID)
	return job, nil
}

// List returns every known upload job, oldest first.
func (q *Queue) List(ctx context.Context) ([]*domain.UploadJob, error) {
	return q.store.List(ctx)
}

// Retry re-submits failed jobs for the given paths with a fresh attempt
// budget. Unknown paths and jobs that are not Failed are skipped.
func (q *Queue) Retry(ctx context.Context, videoPaths []string) (int, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, domain.ErrQueueClosed
	}
	q.mu.Unlock()

	requeued := 0
	for _, path := range videoPaths {
		job, err := q.store.GetByPath(ctx, path)
		if errors.Is(err, domain.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return requeued, err
		}
		if job.Status != domain.UploadFailed {
			continue
		}

		q.mu.Lock()
		if _, active := q.inFlight[path]; active {
			q.mu.Unlock()
			continue
		}
		q.inFlight[path] = struct{}{}
		q.mu.Unlock()

		job.Status = domain.UploadQueued
		job.AttemptCount = 0
		job.LastError = ""
		job.UpdatedAt = time.Now()
		if err := q.store.Save(ctx, job); err != nil {
			q.release(path)
			return requeued, err
		}

		select {
		case q.work <- job:
			requeued++
		default:
			q.release(path)
			q.failJob(ctx, job, domain.ErrQueueFull.Error(), "queue_full")
			return requeued, domain.ErrQueueFull
		}
	}

	if requeued > 0 {
		q.notify("Uploads re-queued", fmt.Sprintf("%d upload(s) submitted for retry", requeued), domain.SeverityInfo)
	}
	return requeued, nil
}

// Shutdown stops accepting work and waits for in-progress attempts.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.work:
			q.process(job)
		}
	}
}

func (q *Queue) process(job *domain.UploadJob) {
	ctx := q.ctx

	job.Status = domain.UploadUploading
	job.AttemptCount++
	job.UpdatedAt = time.Now()
	if err := q.store.Save(ctx, job); err != nil {
		q.logger.Errorw("failed to persist job state", "job_id", job.ID, "error", err)
	}

	name := filepath.Base(job.VideoPath)
	if job.AttemptCount == 1 {
		q.notify("Upload started", fmt.Sprintf("uploading %s", name), domain.SeverityInfo)
	}

	attemptCtx, span := tracing.TraceUploadAttempt(ctx, job.ID, job.VideoPath, job.AttemptCount)
	q.metrics.RecordUploadAttempt()
	started := time.Now()
	err := q.uploader.Upload(attemptCtx, job)
	span.End()

	switch {
	case err == nil:
		job.Status = domain.UploadSucceeded
		job.LastError = ""
		job.UpdatedAt = time.Now()
		if saveErr := q.store.Save(ctx, job); saveErr != nil {
			q.logger.Errorw("failed to persist job success", "job_id", job.ID, "error", saveErr)
		}
		q.release(job.VideoPath)
		q.metrics.RecordUploadSuccess(time.Since(started))
		q.notify("Upload complete", fmt.Sprintf("%s uploaded", name), domain.SeveritySuccess)

	case errors.Is(err, domain.ErrUnauthorized):
		q.failJob(ctx, job, err.Error(), "unauthorized")
		q.notify("Upload failed", fmt.Sprintf("%s: authorize YouTube access and retry", name), domain.SeverityError)

	case errors.Is(err, domain.ErrUploadPermanent):
		q.failJob(ctx, job, err.Error(), "permanent")
		q.notify("Upload failed", fmt.Sprintf("%s cannot be uploaded: %v", name, err), domain.SeverityError)

	case errors.Is(err, context.Canceled):
		// Shutdown mid-attempt; the job stays Uploading and is recovered
		// on the next start.
		q.logger.Infow("upload attempt cancelled", "job_id", job.ID)

	default:
		tracing.RecordError(attemptCtx, err)
		if job.AttemptCount >= q.cfg.MaxAttempts {
			q.failJob(ctx, job, err.Error(), "max_attempts")
			q.notify("Upload failed",
				fmt.Sprintf("%s failed after %d attempts", name, job.AttemptCount), domain.SeverityError)
			return
		}

		job.Status = domain.UploadQueued
		job.LastError = err.Error()
		job.UpdatedAt = time.Now()
		if saveErr := q.store.Save(ctx, job); saveErr != nil {
			q.logger.Errorw("failed to persist job retry", "job_id", job.ID, "error", saveErr)
		}

		delay := retry.Delay(q.cfg.Backoff, job.AttemptCount-1)
		q.logger.Warnw("upload attempt failed, retrying",
			"job_id", job.ID, "attempt", job.AttemptCount, "delay", delay, "error", err)
		q.wg.Add(1)
		go q.resubmit(job, delay)
	}
}

// resubmit puts a job back on the work channel after its backoff delay.
func (q *Queue) resubmit(job *domain.UploadJob, delay time.Duration) {
	defer q.wg.Done()
	select {
	case <-q.ctx.Done():
		return
	case <-time.After(delay):
	}

	select {
	case q.work <- job:
	case <-q.ctx.Done():
	}
}

func (q *Queue) failJob(ctx context.Context, job *domain.UploadJob, lastError, reason string) {
	job.Status = domain.UploadFailed
	job.LastError = lastError
	job.UpdatedAt = time.Now()
	if err := q.store.Save(ctx, job); err != nil {
		q.logger.Errorw("failed to persist job failure", "job_id", job.ID, "error", err)
	}
	q.release(job.VideoPath)
	q.metrics.RecordUploadFailure(reason)
}

func (q *Queue) release(videoPath string) {
	q.mu.Lock()
	delete(q.inFlight, videoPath)
	q.mu.Unlock()
}

func (q *Queue) notify(title, body string, severity domain.Severity) {
	if q.broadcaster == nil {
		return
	}
	q.broadcaster.Publish(domain.Notification{Title: title, Body: body, Severity: severity})
}
