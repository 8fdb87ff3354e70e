package consent

import (
	"context"
	"sync"

	"idserver/internal/oauth"
)

// InMemoryStore keeps consents in memory for tests/dev.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[string][]*oauth.Consent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{consents: make(map[string][]*oauth.Consent)}
}

func (s *InMemoryStore) GetConsentsForSubject(_ context.Context, subject string) ([]*oauth.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*oauth.Consent(nil), s.consents[subject]...), nil
}

func (s *InMemoryStore) Insert(_ context.Context, consent *oauth.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[consent.Subject] = append(s.consents[consent.Subject], consent)
	return nil
}
