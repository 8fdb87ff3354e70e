package confirmationcode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

var issuedAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func sample(code string) *oauth.ConfirmationCode {
	return &oauth.ConfirmationCode{
		Code:      code,
		Subject:   "alice",
		CreatedAt: issuedAt,
		ExpiresIn: 5 * time.Minute,
	}
}

func TestAddGetRemove(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, sample("123456")))

	record, err := s.Get(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "alice", record.Subject)

	require.NoError(t, s.Remove(ctx, "123456"))
	_, err = s.Get(ctx, "123456")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, "123456"), sentinel.ErrNotFound)
}

func TestAdd_DuplicateIsConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, sample("123456")))
	assert.ErrorIs(t, s.Add(ctx, sample("123456")), sentinel.ErrConflict)
}

func TestDeleteExpiredCodes(t *testing.T) {
	s := New()
	ctx := context.Background()

	stale := sample("111111")
	stale.CreatedAt = issuedAt.Add(-10 * time.Minute)
	require.NoError(t, s.Add(ctx, stale))
	require.NoError(t, s.Add(ctx, sample("222222")))

	n, err := s.DeleteExpiredCodes(ctx, issuedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "222222")
	assert.NoError(t, err)
}
