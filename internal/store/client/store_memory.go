package clientstore

import (
	"context"
	"fmt"
	"sync"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

// InMemoryStore holds registered clients, seeded at boot. Client registration
// is an administrative path; requests only read.
type InMemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*oauth.Client
}

// New constructs a client store seeded with the given clients.
func New(seed ...*oauth.Client) *InMemoryStore {
	s := &InMemoryStore{clients: make(map[string]*oauth.Client, len(seed))}
	for _, c := range seed {
		s.clients[c.ID] = c
	}
	return s
}

func (s *InMemoryStore) GetByID(_ context.Context, id string) (*oauth.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %q not found: %w", id, sentinel.ErrNotFound)
	}
	return client, nil
}

func (s *InMemoryStore) Insert(_ context.Context, client *oauth.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ID]; ok {
		return fmt.Errorf("client %q already registered: %w", client.ID, sentinel.ErrConflict)
	}
	s.clients[client.ID] = client
	return nil
}
