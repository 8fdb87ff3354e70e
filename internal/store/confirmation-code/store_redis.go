package confirmationcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

const codeKeyPrefix = "confirm:"

// RedisStore keeps confirmation codes in Redis with their own TTL. SET NX
// makes Add the collision check for the generator's uniqueness retry.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed confirmation code store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Add(ctx context.Context, code *oauth.ConfirmationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal confirmation code: %w", err)
	}
	ok, err := s.client.SetNX(ctx, codeKeyPrefix+code.Code, data, code.ExpiresIn).Result()
	if err != nil {
		return fmt.Errorf("store confirmation code: %w", err)
	}
	if !ok {
		return fmt.Errorf("confirmation code collision: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, code string) (*oauth.ConfirmationCode, error) {
	data, err := s.client.Get(ctx, codeKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("confirmation code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup confirmation code: %w", err)
	}
	var record oauth.ConfirmationCode
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode confirmation code: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) Remove(ctx context.Context, code string) error {
	removed, err := s.client.Del(ctx, codeKeyPrefix+code).Result()
	if err != nil {
		return fmt.Errorf("remove confirmation code: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("confirmation code not found: %w", sentinel.ErrNotFound)
	}
	return nil
}
