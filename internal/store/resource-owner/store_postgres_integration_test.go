//go:build integration

package resourceowner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idserver/internal/oauth"
	resourceowner "idserver/internal/store/resource-owner"
	"idserver/pkg/platform/sentinel"
	"idserver/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *resourceowner.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.Exec(s.T(), `
		CREATE TABLE resource_owners (
		    subject       TEXT PRIMARY KEY,
		    password_hash TEXT NOT NULL,
		    claims        JSONB NOT NULL DEFAULT '{}',
		    two_factor    TEXT NOT NULL DEFAULT '',
		    is_local      BOOLEAN NOT NULL DEFAULT TRUE,
		    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	s.store = resourceowner.NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), `TRUNCATE resource_owners`)
}

func (s *PostgresStoreSuite) sampleOwner() *oauth.ResourceOwner {
	return &oauth.ResourceOwner{
		Subject:      "alice",
		PasswordHash: "$2a$10$notarealhashbutlongenough",
		Claims: map[string]string{
			oauth.ClaimName:  "Alice Example",
			oauth.ClaimEmail: "alice@example.test",
		},
		TwoFactor: oauth.TwoFactorEmail,
		IsLocal:   true,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *PostgresStoreSuite) TestInsertAndGet() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.sampleOwner()))

	owner, err := s.store.GetBySubject(ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Alice Example", owner.Claims[oauth.ClaimName])
	s.Equal(oauth.TwoFactorEmail, owner.TwoFactor)
	s.True(owner.IsLocal)
}

func (s *PostgresStoreSuite) TestInsertDuplicateIsConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.sampleOwner()))
	s.ErrorIs(s.store.Insert(ctx, s.sampleOwner()), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestGetUnknownSubject() {
	_, err := s.store.GetBySubject(context.Background(), "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateClaims() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.sampleOwner()))

	s.Require().NoError(s.store.UpdateClaims(ctx, "alice", map[string]string{
		oauth.ClaimName: "Alice Renamed",
	}))

	owner, err := s.store.GetBySubject(ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Alice Renamed", owner.Claims[oauth.ClaimName])

	s.ErrorIs(s.store.UpdateClaims(ctx, "nobody", nil), sentinel.ErrNotFound)
}
