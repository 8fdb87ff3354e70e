package authorizationcode

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

const codeKeyPrefix = "authcode:"

// RedisStore persists authorization codes in Redis. Consume relies on GETDEL
// so concurrent exchange attempts race on the server, not in the client.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed authorization code store. The TTL should
// match the configured code validity period plus a small grace so the explicit
// expiry check in the exchange action fires before the key disappears.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) AddAuthorizationCode(ctx context.Context, code *oauth.AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal authorization code: %w", err)
	}
	if err := s.client.Set(ctx, codeKeyPrefix+code.Code, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store authorization code: %w", err)
	}
	return nil
}

func (s *RedisStore) GetAuthorizationCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	data, err := s.client.Get(ctx, codeKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup authorization code: %w", err)
	}
	return decode(data)
}

func (s *RedisStore) RemoveAuthorizationCode(ctx context.Context, code string) error {
	removed, err := s.client.Del(ctx, codeKeyPrefix+code).Result()
	if err != nil {
		return fmt.Errorf("remove authorization code: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

// Consume removes and returns the code atomically via GETDEL.
func (s *RedisStore) Consume(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	data, err := s.client.GetDel(ctx, codeKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*oauth.AuthorizationCode, error) {
	var record oauth.AuthorizationCode
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode authorization code: %w", err)
	}
	return &record, nil
}
