package authorizationcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore keeps authorization codes in memory for tests/dev. The store
// is the sole synchronization point for the single-use guarantee: Consume is
// an atomic delete-on-read under one lock.
type InMemoryStore struct {
	mu    sync.RWMutex
	codes map[string]*oauth.AuthorizationCode
}

// New constructs an empty in-memory authorization code store.
func New() *InMemoryStore {
	return &InMemoryStore{codes: make(map[string]*oauth.AuthorizationCode)}
}

func (s *InMemoryStore) AddAuthorizationCode(_ context.Context, code *oauth.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = code
	return nil
}

func (s *InMemoryStore) GetAuthorizationCode(_ context.Context, code string) (*oauth.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	return record, nil
}

func (s *InMemoryStore) RemoveAuthorizationCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; !ok {
		return fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	delete(s.codes, code)
	return nil
}

// Consume removes and returns the code in one step. Concurrent exchanges of
// the same code see exactly one success; the rest get ErrNotFound.
func (s *InMemoryStore) Consume(_ context.Context, code string) (*oauth.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	delete(s.codes, code)
	return record, nil
}

// DeleteExpiredCodes removes codes issued before now minus the validity window.
// The time parameter is injected for testability (no hidden time.Now() calls).
func (s *InMemoryStore) DeleteExpiredCodes(_ context.Context, validity time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for code, record := range s.codes {
		if now.After(record.CreatedAt.Add(validity)) {
			delete(s.codes, code)
			deleted++
		}
	}
	return deleted, nil
}
