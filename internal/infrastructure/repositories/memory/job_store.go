package memory

import (
	"context"
	"sort"
	"sync"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
)

// jobStore is an in-memory UploadJobStore used in tests and as a
// fallback when no database path is configured.
type jobStore struct {
	jobs map[string]*domain.UploadJob
	mu   sync.RWMutex
}

func NewUploadJobStore() ports.UploadJobStore {
	return &jobStore{jobs: make(map[string]*domain.UploadJob)}
}

func (s *jobStore) Save(_ context.Context, job *domain.UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *job
	s.jobs[job.VideoPath] = &copied
	return nil
}

func (s *jobStore) GetByPath(_ context.Context, videoPath string) (*domain.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[videoPath]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *jobStore) List(_ context.Context) ([]*domain.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*domain.UploadJob) bool { return true }), nil
}

func (s *jobStore) ListByStatus(_ context.Context, status domain.UploadStatus) ([]*domain.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(j *domain.UploadJob) bool { return j.Status == status }), nil
}

func (s *jobStore) collect(keep func(*domain.UploadJob) bool) []*domain.UploadJob {
	out := make([]*domain.UploadJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if keep(job) {
			copied := *job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
