//go:build integration

package confirmationcode_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idserver/internal/oauth"
	confirmationcode "idserver/internal/store/confirmation-code"
	"idserver/pkg/platform/sentinel"
	"idserver/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *confirmationcode.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = confirmationcode.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestAddGetRemove() {
	ctx := context.Background()
	code := &oauth.ConfirmationCode{
		Code:      "123456",
		Subject:   "alice",
		CreatedAt: time.Now().UTC(),
		ExpiresIn: 5 * time.Minute,
	}
	s.Require().NoError(s.store.Add(ctx, code))

	got, err := s.store.Get(ctx, "123456")
	s.Require().NoError(err)
	s.Equal("alice", got.Subject)

	s.Require().NoError(s.store.Remove(ctx, "123456"))
	_, err = s.store.Get(ctx, "123456")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestDuplicateAddIsConflict() {
	ctx := context.Background()
	code := &oauth.ConfirmationCode{
		Code:      "123456",
		Subject:   "alice",
		CreatedAt: time.Now().UTC(),
		ExpiresIn: 5 * time.Minute,
	}
	s.Require().NoError(s.store.Add(ctx, code))
	s.ErrorIs(s.store.Add(ctx, code), sentinel.ErrConflict)
}

func (s *RedisStoreSuite) TestKeysExpireWithTheCode() {
	ctx := context.Background()
	code := &oauth.ConfirmationCode{
		Code:      "777777",
		Subject:   "alice",
		CreatedAt: time.Now().UTC(),
		ExpiresIn: time.Second,
	}
	s.Require().NoError(s.store.Add(ctx, code))

	s.Eventually(func() bool {
		_, err := s.store.Get(ctx, "777777")
		return err != nil
	}, 5*time.Second, 200*time.Millisecond)
}
