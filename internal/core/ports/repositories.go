package ports

import (
	"context"

	"streamcorder/internal/core/domain"
)

// UploadJobStore persists upload jobs so the queue survives restarts.
type UploadJobStore interface {
	Save(ctx context.Context, job *domain.UploadJob) error
	GetByPath(ctx context.Context, videoPath string) (*domain.UploadJob, error)
	List(ctx context.Context) ([]*domain.UploadJob, error)
	ListByStatus(ctx context.Context, status domain.UploadStatus) ([]*domain.UploadJob, error)
}

// CredentialStore persists the process-wide OAuth credential.
// Load returns (nil, nil) when no credential has been stored.
type CredentialStore interface {
	Save(ctx context.Context, cred *domain.Credential) error
	Load(ctx context.Context) (*domain.Credential, error)
	Clear(ctx context.Context) error
}
