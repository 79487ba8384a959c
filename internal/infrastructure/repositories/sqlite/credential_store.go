package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
)

type credentialStore struct {
	db *sql.DB
}

// NewCredentialStore returns a durable CredentialStore holding the
// single process-wide credential.
func NewCredentialStore(db *sql.DB) ports.CredentialStore {
	return &credentialStore{db: db}
}

func (s *credentialStore) Save(ctx context.Context, cred *domain.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, access_token, refresh_token, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at`,
		cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *credentialStore) Load(ctx context.Context) (*domain.Credential, error) {
	var cred domain.Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at FROM credentials WHERE id = 1`).
		Scan(&cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &cred, nil
}

func (s *credentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
