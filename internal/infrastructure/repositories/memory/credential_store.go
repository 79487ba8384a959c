package memory

import (
	"context"
	"sync"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
)

type credentialStore struct {
	cred *domain.Credential
	mu   sync.RWMutex
}

func NewCredentialStore() ports.CredentialStore {
	return &credentialStore{}
}

func (s *credentialStore) Save(_ context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.cred = &copied
	return nil
}

func (s *credentialStore) Load(_ context.Context) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return nil, nil
	}
	copied := *s.cred
	return &copied, nil
}

func (s *credentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}
