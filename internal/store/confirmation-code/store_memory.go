package confirmationcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

// InMemoryStore keeps in-flight two-factor confirmation codes.
// Add enforces uniqueness so the generator can detect collisions.
type InMemoryStore struct {
	mu    sync.RWMutex
	codes map[string]*oauth.ConfirmationCode
}

// New constructs an empty in-memory confirmation code store.
func New() *InMemoryStore {
	return &InMemoryStore{codes: make(map[string]*oauth.ConfirmationCode)}
}

func (s *InMemoryStore) Add(_ context.Context, code *oauth.ConfirmationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return fmt.Errorf("confirmation code collision: %w", sentinel.ErrConflict)
	}
	s.codes[code.Code] = code
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, code string) (*oauth.ConfirmationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("confirmation code not found: %w", sentinel.ErrNotFound)
	}
	return record, nil
}

func (s *InMemoryStore) Remove(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; !ok {
		return fmt.Errorf("confirmation code not found: %w", sentinel.ErrNotFound)
	}
	delete(s.codes, code)
	return nil
}

// DeleteExpiredCodes removes codes past their validity as of the given time.
func (s *InMemoryStore) DeleteExpiredCodes(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for code, record := range s.codes {
		if !record.Valid(now) {
			delete(s.codes, code)
			deleted++
		}
	}
	return deleted, nil
}
