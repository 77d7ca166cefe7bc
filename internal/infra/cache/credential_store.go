package cache

import (
	"context"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
)

// CredentialStore keeps cached credentials in process memory.
// It implements port.CredentialStore.
type CredentialStore struct {
	items *InMemory[domain.CachedCredential]
}

// NewCredentialStore creates an empty in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{items: New[domain.CachedCredential](time.Hour)}
}

func (s *CredentialStore) Get(_ context.Context, identity string) (*domain.CachedCredential, error) {
	cred, ok := s.items.Get(identity)
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (s *CredentialStore) Put(_ context.Context, identity string, cred domain.CachedCredential, ttl time.Duration) error {
	s.items.SetWithTTL(identity, cred, ttl)
	return nil
}

// Close stops the background cleanup.
func (s *CredentialStore) Close() error {
	s.items.Stop()
	return nil
}
