package resourceowner

import (
	"context"
	"fmt"
	"sync"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

// InMemoryStore keeps resource owners in memory for tests/dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	owners map[string]*oauth.ResourceOwner
}

// New constructs a resource owner store seeded with the given owners.
func New(seed ...*oauth.ResourceOwner) *InMemoryStore {
	s := &InMemoryStore{owners: make(map[string]*oauth.ResourceOwner, len(seed))}
	for _, o := range seed {
		s.owners[o.Subject] = o
	}
	return s
}

func (s *InMemoryStore) GetBySubject(_ context.Context, subject string) (*oauth.ResourceOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[subject]
	if !ok {
		return nil, fmt.Errorf("resource owner not found: %w", sentinel.ErrNotFound)
	}
	return owner, nil
}

func (s *InMemoryStore) Insert(_ context.Context, owner *oauth.ResourceOwner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[owner.Subject]; ok {
		return fmt.Errorf("resource owner already exists: %w", sentinel.ErrConflict)
	}
	s.owners[owner.Subject] = owner
	return nil
}

func (s *InMemoryStore) UpdateClaims(_ context.Context, subject string, claims map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[subject]
	if !ok {
		return fmt.Errorf("resource owner not found: %w", sentinel.ErrNotFound)
	}
	owner.Claims = claims
	return nil
}
