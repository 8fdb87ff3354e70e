package grantedtoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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

// Fingerprint identifies a reusable granted token by scope, client and the
// payload snapshots it embeds. Two requests producing the same fingerprint can
// share one access token.
func Fingerprint(scope, clientID string, idTokenPayload, userInfoPayload oauth.Payload) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", scope, clientID, idTokenPayload.Fingerprint(), userInfoPayload.Fingerprint())
	return hex.EncodeToString(h.Sum(nil))
}

// InMemoryStore keeps granted tokens in memory for tests/dev.
type InMemoryStore struct {
	mu            sync.RWMutex
	byAccess      map[string]*oauth.GrantedToken
	byRefresh     map[string]string
	byFingerprint map[string]string
}

// New constructs an empty in-memory granted token store.
func New() *InMemoryStore {
	return &InMemoryStore{
		byAccess:      make(map[string]*oauth.GrantedToken),
		byRefresh:     make(map[string]string),
		byFingerprint: make(map[string]string),
	}
}

func (s *InMemoryStore) AddToken(_ context.Context, token *oauth.GrantedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccess[token.AccessToken] = token
	if token.RefreshToken != "" {
		s.byRefresh[token.RefreshToken] = token.AccessToken
	}
	s.byFingerprint[Fingerprint(token.Scope, token.ClientID, token.IDTokenPayload, token.UserInfoPayload)] = token.AccessToken
	return nil
}

// GetToken returns an unexpired token matching the reuse fingerprint.
func (s *InMemoryStore) GetToken(_ context.Context, scope, clientID string, idTokenPayload, userInfoPayload oauth.Payload, now time.Time) (*oauth.GrantedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	access, ok := s.byFingerprint[Fingerprint(scope, clientID, idTokenPayload, userInfoPayload)]
	if !ok {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	token, ok := s.byAccess[access]
	if !ok || token.Expired(now) {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	return token, nil
}

func (s *InMemoryStore) GetByAccessToken(_ context.Context, accessToken string) (*oauth.GrantedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.byAccess[accessToken]
	if !ok {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	return token, nil
}

func (s *InMemoryStore) GetByRefreshToken(_ context.Context, refreshToken string) (*oauth.GrantedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	access, ok := s.byRefresh[refreshToken]
	if !ok {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	token, ok := s.byAccess[access]
	if !ok {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	return token, nil
}

// RemoveRefreshToken drops the refresh index entry, used on rotation.
func (s *InMemoryStore) RemoveRefreshToken(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byRefresh[refreshToken]; !ok {
		return fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	delete(s.byRefresh, refreshToken)
	return nil
}

// DeleteExpiredTokens removes tokens past their validity as of the given time.
// The time parameter is injected for testability (no hidden time.Now() calls).
func (s *InMemoryStore) DeleteExpiredTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for access, token := range s.byAccess {
		if !token.Expired(now) {
			continue
		}
		delete(s.byAccess, access)
		if token.RefreshToken != "" {
			delete(s.byRefresh, token.RefreshToken)
		}
		delete(s.byFingerprint, Fingerprint(token.Scope, token.ClientID, token.IDTokenPayload, token.UserInfoPayload))
		deleted++
	}
	return deleted, nil
}
