package clientstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

func TestGetByID(t *testing.T) {
	s := New(&oauth.Client{ID: "my-blog"})
	ctx := context.Background()

	client, err := s.GetByID(ctx, "my-blog")
	require.NoError(t, err)
	assert.Equal(t, "my-blog", client.ID)

	_, err = s.GetByID(ctx, "unknown")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInsert(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &oauth.Client{ID: "new-client"}))
	assert.ErrorIs(t, s.Insert(ctx, &oauth.Client{ID: "new-client"}), sentinel.ErrConflict)
}
