package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
)

type jobStore struct {
	db *sql.DB
}

// NewUploadJobStore returns a durable UploadJobStore backed by the
// given database.
func NewUploadJobStore(db *sql.DB) ports.UploadJobStore {
	return &jobStore{db: db}
}

func (s *jobStore) Save(ctx context.Context, job *domain.UploadJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_jobs (id, video_path, stream_name, status, attempt_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_path) DO UPDATE SET
			status        = excluded.status,
			attempt_count = excluded.attempt_count,
			last_error    = excluded.last_error,
			updated_at    = excluded.updated_at`,
		job.ID, job.VideoPath, job.StreamName, string(job.Status),
		job.AttemptCount, job.LastError, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save upload job: %w", err)
	}
	return nil
}

func (s *jobStore) GetByPath(ctx context.Context, videoPath string) (*domain.UploadJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, video_path, stream_name, status, attempt_count, last_error, created_at, updated_at
		FROM upload_jobs WHERE video_path = ?`, videoPath)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload job: %w", err)
	}
	return job, nil
}

func (s *jobStore) List(ctx context.Context) ([]*domain.UploadJob, error) {
	return s.query(ctx, `
		SELECT id, video_path, stream_name, status, attempt_count, last_error, created_at, updated_at
		FROM upload_jobs ORDER BY created_at`)
}

func (s *jobStore) ListByStatus(ctx context.Context, status domain.UploadStatus) ([]*domain.UploadJob, error) {
	return s.query(ctx, `
		SELECT id, video_path, stream_name, status, attempt_count, last_error, created_at, updated_at
		FROM upload_jobs WHERE status = ? ORDER BY created_at`, string(status))
}

func (s *jobStore) query(ctx context.Context, q string, args ...interface{}) ([]*domain.UploadJob, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list upload jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.UploadJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*domain.UploadJob, error) {
	var job domain.UploadJob
	var status string
	if err := row.Scan(&job.ID, &job.VideoPath, &job.StreamName, &status,
		&job.AttemptCount, &job.LastError, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Status = domain.UploadStatus(status)
	return &job, nil
}
