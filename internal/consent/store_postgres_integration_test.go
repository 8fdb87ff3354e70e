//go:build integration

package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idserver/internal/consent"
	"idserver/internal/oauth"
	"idserver/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *consent.PostgresStore
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
		CREATE TABLE consents (
		    id             TEXT PRIMARY KEY,
		    subject        TEXT NOT NULL,
		    client_id      TEXT NOT NULL,
		    granted_scopes TEXT[] NOT NULL DEFAULT '{}',
		    granted_claims TEXT[] NOT NULL DEFAULT '{}',
		    granted_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	s.pg.Exec(s.T(), `CREATE INDEX consents_subject_idx ON consents (subject)`)
	s.store = consent.NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), `TRUNCATE consents`)
}

func (s *PostgresStoreSuite) TestInsertAndList() {
	ctx := context.Background()

	s.Require().NoError(s.store.Insert(ctx, &oauth.Consent{
		ID:            "c-1",
		Subject:       "alice",
		ClientID:      "my-blog",
		GrantedScopes: []string{"openid", "profile"},
		GrantedClaims: []string{"name"},
		GrantedAt:     time.Now().UTC().Add(-time.Hour),
	}))
	s.Require().NoError(s.store.Insert(ctx, &oauth.Consent{
		ID:        "c-2",
		Subject:   "alice",
		ClientID:  "other-app",
		GrantedAt: time.Now().UTC(),
	}))

	consents, err := s.store.GetConsentsForSubject(ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(consents, 2)
	s.Equal("my-blog", consents[0].ClientID, "ordered by granted_at")
	s.Equal([]string{"openid", "profile"}, consents[0].GrantedScopes)
	s.Equal([]string{"name"}, consents[0].GrantedClaims)
}

func (s *PostgresStoreSuite) TestEmptySubject() {
	consents, err := s.store.GetConsentsForSubject(context.Background(), "nobody")
	s.Require().NoError(err)
	s.Empty(consents)
}

func (s *PostgresStoreSuite) TestMatcherOverPostgresRecords() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, &oauth.Consent{
		ID:            "c-1",
		Subject:       "alice",
		ClientID:      "my-blog",
		GrantedScopes: []string{"openid", "profile"},
		GrantedAt:     time.Now().UTC(),
	}))

	svc := consent.NewService(s.store)
	matched, err := svc.ConfirmedConsent(ctx, "alice", &oauth.AuthorizationParameter{
		ClientID: "my-blog",
		Scope:    "openid",
	})
	s.Require().NoError(err)
	s.Require().NotNil(matched)
	s.Equal([]string{"openid"}, matched.GrantedScopes)
}
