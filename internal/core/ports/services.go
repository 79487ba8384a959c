package ports

import (
	"context"

	"streamcorder/internal/core/domain"
)

// Registry is the source of truth for what may be recorded.
type Registry interface {
	List() []domain.StreamConfig
	Get(name string) (domain.StreamConfig, error)
	Enabled() []domain.StreamConfig
}

// Supervisor owns one recording session per enabled stream.
type Supervisor interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	StartAll(ctx context.Context) error
	StopAll(ctx context.Context) error
	Status() domain.SupervisorStatus
	Shutdown(ctx context.Context) error
}

// AuthManager drives the OAuth authorization state machine and token
// refresh for the remote account.
type AuthManager interface {
	BeginAuthorization() (string, error)
	CompleteAuthorization(ctx context.Context, redirectURL string) error
	// EnsureValidToken returns a usable access token, refreshing it when
	// it is within the safety margin of expiry.
	EnsureValidToken(ctx context.Context) (string, error)
	State() domain.AuthState
}

// UploadQueue is the durable, retrying job queue moving recorded files
// to the remote platform.
type UploadQueue interface {
	Enqueue(ctx context.Context, videoPath, streamName string) (*domain.UploadJob, error)
	List(ctx context.Context) ([]*domain.UploadJob, error)
	// Retry re-submits failed jobs for the given paths; it returns how
	// many jobs were re-queued.
	Retry(ctx context.Context, videoPaths []string) (int, error)
	Shutdown(ctx context.Context) error
}

// Discovery scans configured directories for uploadable files.
type Discovery interface {
	Scan(ctx context.Context) ([]domain.VideoFile, error)
}

// Broadcaster pushes events to the UI channel. Fire-and-forget: it
// never blocks and never returns an error to the caller.
type Broadcaster interface {
	Publish(event domain.Event)
}

// Uploader performs one upload attempt for a job. Failures are
// classified via domain.ErrUploadTransient / domain.ErrUploadPermanent.
type Uploader interface {
	Upload(ctx context.Context, job *domain.UploadJob) error
}
