package grantedtoken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

var issuedAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func sampleToken(access, refresh string) *oauth.GrantedToken {
	return &oauth.GrantedToken{
		AccessToken:  access,
		RefreshToken: refresh,
		Scope:        "openid profile",
		ClientID:     "my-blog",
		ExpiresIn:    3600,
		CreatedAt:    issuedAt,
		UserInfoPayload: oauth.Payload{
			oauth.ClaimSubject: "alice",
		},
	}
}

func TestGetToken_MatchesFingerprint(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.AddToken(ctx, sampleToken("at-1", "rt-1")))

	got, err := s.GetToken(ctx, "openid profile", "my-blog",
		nil, oauth.Payload{oauth.ClaimSubject: "alice"}, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "at-1", got.AccessToken)

	_, err = s.GetToken(ctx, "openid", "my-blog",
		nil, oauth.Payload{oauth.ClaimSubject: "alice"}, issuedAt.Add(time.Minute))
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "narrower scope is a different token")

	_, err = s.GetToken(ctx, "openid profile", "my-blog",
		nil, oauth.Payload{oauth.ClaimSubject: "bob"}, issuedAt.Add(time.Minute))
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "different subject is a different token")
}

func TestGetToken_ExpiredIsNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.AddToken(ctx, sampleToken("at-1", "rt-1")))

	_, err := s.GetToken(ctx, "openid profile", "my-blog",
		nil, oauth.Payload{oauth.ClaimSubject: "alice"}, issuedAt.Add(2*time.Hour))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestGetToken_VolatileClaimsDoNotSplitFingerprints(t *testing.T) {
	s := New()
	ctx := context.Background()

	tok := sampleToken("at-1", "rt-1")
	tok.UserInfoPayload[oauth.ClaimIssuedAt] = int64(1000)
	require.NoError(t, s.AddToken(ctx, tok))

	got, err := s.GetToken(ctx, "openid profile", "my-blog",
		nil, oauth.Payload{
			oauth.ClaimSubject:  "alice",
			oauth.ClaimIssuedAt: int64(2000),
		}, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "at-1", got.AccessToken)
}

func TestGetByRefreshToken(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.AddToken(ctx, sampleToken("at-1", "rt-1")))

	got, err := s.GetByRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", got.AccessToken)

	_, err = s.GetByRefreshToken(ctx, "rt-unknown")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRemoveRefreshToken(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.AddToken(ctx, sampleToken("at-1", "rt-1")))

	require.NoError(t, s.RemoveRefreshToken(ctx, "rt-1"))

	_, err := s.GetByRefreshToken(ctx, "rt-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	assert.ErrorIs(t, s.RemoveRefreshToken(ctx, "rt-1"), sentinel.ErrNotFound)
}

func TestGetByAccessToken(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.AddToken(ctx, sampleToken("at-1", "")))

	got, err := s.GetByAccessToken(ctx, "at-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserInfoPayload.Subject())

	_, err = s.GetByAccessToken(ctx, "at-nope")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDeleteExpiredTokens(t *testing.T) {
	s := New()
	ctx := context.Background()

	fresh := sampleToken("at-fresh", "rt-fresh")
	stale := sampleToken("at-stale", "rt-stale")
	stale.Scope = "openid"
	stale.CreatedAt = issuedAt.Add(-3 * time.Hour)
	require.NoError(t, s.AddToken(ctx, fresh))
	require.NoError(t, s.AddToken(ctx, stale))

	n, err := s.DeleteExpiredTokens(ctx, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetByAccessToken(ctx, "at-stale")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.GetByRefreshToken(ctx, "rt-stale")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.GetByAccessToken(ctx, "at-fresh")
	assert.NoError(t, err)
}

func TestAddToken_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := sampleToken("at-1", "rt-1")
			_ = s.AddToken(ctx, tok)
			_, _ = s.GetByAccessToken(ctx, "at-1")
			_, _ = s.GetByRefreshToken(ctx, "rt-1")
		}(i)
	}
	wg.Wait()

	_, err := s.GetByAccessToken(ctx, "at-1")
	assert.NoError(t, err)
}
