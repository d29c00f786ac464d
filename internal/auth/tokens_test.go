package auth

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenStore(t *testing.T, ttl time.Duration) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, ttl), mr
}

func TestTokenIssueAndVerify(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	ctx := context.Background()

	want := Principal{UserID: uuid.New(), Email: "ada@example.org"}
	token, err := store.Issue(ctx, want)
	require.NoError(t, err)
	require.Len(t, token, 64)

	got, err := store.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Email, got.Email)
}

func TestTokenVerifyUnknown(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)

	_, err := store.Verify(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenExpires(t *testing.T) {
	store, mr := newTokenStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, Principal{UserID: uuid.New(), Email: "ada@example.org"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenRevoke(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, Principal{UserID: uuid.New(), Email: "ada@example.org"})
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// Revoking again is a no-op.
	assert.NoError(t, store.Revoke(ctx, token))
}

func TestTokensAreUnique(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	ctx := context.Background()
	p := Principal{UserID: uuid.New(), Email: "ada@example.org"}

	first, err := store.Issue(ctx, p)
	require.NoError(t, err)
	second, err := store.Issue(ctx, p)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
