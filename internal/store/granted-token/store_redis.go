package grantedtoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

const (
	accessKeyPrefix      = "token:access:"
	refreshKeyPrefix     = "token:refresh:"
	fingerprintKeyPrefix = "token:fp:"
)

// RedisStore persists granted tokens in Redis with TTLs derived from token
// validity, so expiry needs no sweeper.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed granted token store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func tokenTTL(token *oauth.GrantedToken) time.Duration {
	// Refresh tokens outlive the access token; keep records around long
	// enough for the refresh grant to find them.
	return time.Duration(token.ExpiresIn)*time.Second + 30*24*time.Hour
}

func (s *RedisStore) AddToken(ctx context.Context, token *oauth.GrantedToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal granted token: %w", err)
	}
	ttl := tokenTTL(token)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, accessKeyPrefix+token.AccessToken, data, ttl)
		if token.RefreshToken != "" {
			pipe.Set(ctx, refreshKeyPrefix+token.RefreshToken, token.AccessToken, ttl)
		}
		fp := Fingerprint(token.Scope, token.ClientID, token.IDTokenPayload, token.UserInfoPayload)
		pipe.Set(ctx, fingerprintKeyPrefix+fp, token.AccessToken, time.Duration(token.ExpiresIn)*time.Second)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store granted token: %w", err)
	}
	return nil
}

func (s *RedisStore) GetToken(ctx context.Context, scope, clientID string, idTokenPayload, userInfoPayload oauth.Payload, now time.Time) (*oauth.GrantedToken, error) {
	fp := Fingerprint(scope, clientID, idTokenPayload, userInfoPayload)
	access, err := s.client.Get(ctx, fingerprintKeyPrefix+fp).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token fingerprint: %w", err)
	}
	token, err := s.GetByAccessToken(ctx, access)
	if err != nil {
		return nil, err
	}
	if token.Expired(now) {
		return nil, fmt.Errorf("granted token expired: %w", sentinel.ErrNotFound)
	}
	return token, nil
}

func (s *RedisStore) GetByAccessToken(ctx context.Context, accessToken string) (*oauth.GrantedToken, error) {
	data, err := s.client.Get(ctx, accessKeyPrefix+accessToken).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup granted token: %w", err)
	}
	var token oauth.GrantedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode granted token: %w", err)
	}
	return &token, nil
}

func (s *RedisStore) GetByRefreshToken(ctx context.Context, refreshToken string) (*oauth.GrantedToken, error) {
	access, err := s.client.Get(ctx, refreshKeyPrefix+refreshToken).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("granted token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	return s.GetByAccessToken(ctx, access)
}

func (s *RedisStore) RemoveRefreshToken(ctx context.Context, refreshToken string) error {
	removed, err := s.client.Del(ctx, refreshKeyPrefix+refreshToken).Result()
	if err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	return nil
}
