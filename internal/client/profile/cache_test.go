package profile

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/backend/memory"
	"github.com/tarun-08/pingme/internal/models"
)

// countingBackend wraps the memory backend and counts profile fetches, so
// tests can tell a cache hit from a round trip.
type countingBackend struct {
	*memory.Backend
	fetches atomic.Int64
}

func (c *countingBackend) FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	c.fetches.Add(1)
	return c.Backend.FetchProfile(ctx, userID)
}

func newTestCache(t *testing.T) (*Cache, *countingBackend, *models.Session) {
	t.Helper()
	cb := &countingBackend{Backend: memory.New()}
	sess, err := cb.SignUp(context.Background(), "alice@example.com", "password123", "alice")
	require.NoError(t, err)
	return NewCache(cb), cb, sess
}

func TestLookupCachesAfterFirstFetch(t *testing.T) {
	ctx := context.Background()
	cache, cb, sess := newTestCache(t)

	first, err := cache.Lookup(ctx, sess.UserID)
	require.NoError(t, err)
	second, err := cache.Lookup(ctx, sess.UserID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), cb.fetches.Load(), "second lookup must be served from cache")
}

func TestLookupDoesNotCacheNotFound(t *testing.T) {
	ctx := context.Background()
	cache, cb, _ := newTestCache(t)

	missing := uuid.New()
	_, err := cache.Lookup(ctx, missing)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	// The profile gets provisioned later (trigger catching up); a fresh
	// lookup must go back to the backend and see it.
	_, err = cache.Lookup(ctx, missing)
	assert.ErrorIs(t, err, backend.ErrNotFound)
	assert.Equal(t, int64(2), cb.fetches.Load(), "misses are not cached")
}

func TestClearForcesRefetch(t *testing.T) {
	ctx := context.Background()
	cache, cb, sess := newTestCache(t)

	_, err := cache.Lookup(ctx, sess.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(1), cb.fetches.Load())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Lookup(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cb.fetches.Load(), "post-clear lookup must refetch")
}

func TestPutPrimesTheCache(t *testing.T) {
	ctx := context.Background()
	cache, cb, sess := newTestCache(t)

	cache.Put(models.Profile{ID: uuid.New(), UserID: sess.UserID, Username: "alice"})

	got, err := cache.Lookup(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, int64(0), cb.fetches.Load())
}
