package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/backend/memory"
	"github.com/tarun-08/pingme/internal/client/profile"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

func newManager(t *testing.T, b backend.Backend) *Manager {
	t.Helper()
	m := NewManager(b, profile.NewCache(b), nil, time.Second, zap.NewNop())
	t.Cleanup(m.Close)
	return m
}

func authoritative(m *Manager) func() bool {
	return func() bool {
		snap := m.Snapshot()
		return snap.Profile != nil && snap.Profile.ID != uuid.Nil
	}
}

func TestBootstrapAnonymous(t *testing.T) {
	m := newManager(t, memory.New())

	snap := m.Bootstrap(context.Background())
	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.Authenticated())
	assert.Nil(t, snap.Profile)
}

func TestBootstrapRestoresExistingSession(t *testing.T) {
	b := memory.New()
	sess, err := b.SignUp(context.Background(), "alice@example.com", "password123", "alice")
	require.NoError(t, err)

	m := newManager(t, b)
	snap := m.Bootstrap(context.Background())

	require.True(t, snap.Authenticated())
	assert.Equal(t, sess.UserID, snap.UserID)
	assert.Equal(t, "alice@example.com", snap.Email)

	// The directory row lands in the background and replaces the
	// provisional profile.
	require.Eventually(t, authoritative(m), time.Second, 5*time.Millisecond)
	assert.Equal(t, "alice", m.Snapshot().Profile.Username)
}

func TestBootstrapRunsOnce(t *testing.T) {
	m := newManager(t, memory.New())

	first := m.Bootstrap(context.Background())
	second := m.Bootstrap(context.Background())
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, StateReady, second.State)
}

// hangingBackend parks GetCurrentSession until the test releases it, standing
// in for a slow or dead network during startup.
type hangingBackend struct {
	*memory.Backend
	release chan *models.Session
}

func (h *hangingBackend) GetCurrentSession(ctx context.Context) (*models.Session, error) {
	select {
	case sess := <-h.release:
		return sess, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestBootstrapTimeoutThenLateAnswer(t *testing.T) {
	hb := &hangingBackend{Backend: memory.New(), release: make(chan *models.Session, 1)}
	m := NewManager(hb, profile.NewCache(hb), nil, 30*time.Millisecond, zap.NewNop())
	t.Cleanup(m.Close)

	start := time.Now()
	snap := m.Bootstrap(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond, "bootstrap returns within its window")
	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.Authenticated(), "timeout yields the anonymous view")

	// The handshake answers after the deadline; with no sign-in/out since,
	// the late truth still lands.
	late := &models.Session{
		UserID:    uuid.New(),
		Email:     "alice@example.com",
		Token:     "token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	hb.release <- late

	require.Eventually(t, func() bool {
		return m.Snapshot().Authenticated()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, late.UserID, m.Snapshot().UserID)
}

func TestSignInPublishesProvisionalThenAuthoritative(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_, err := b.SignUp(ctx, "alice@example.com", "password123", "alice")
	require.NoError(t, err)
	require.NoError(t, b.SignOut(ctx))

	m := newManager(t, b)
	m.Bootstrap(ctx)

	snap, err := m.SignIn(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	require.True(t, snap.Authenticated())
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "alice", snap.Profile.Username, "provisional username from the email local part")

	require.Eventually(t, authoritative(m), time.Second, 5*time.Millisecond)
}

func TestSignInFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	m := newManager(t, b)
	m.Bootstrap(ctx)

	snap, err := m.SignIn(ctx, "nobody@example.com", "wrong")
	var authErr *backend.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, snap.Authenticated())
}

type countingBackend struct {
	*memory.Backend
	fetches atomic.Int64
}

func (c *countingBackend) FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	c.fetches.Add(1)
	return c.Backend.FetchProfile(ctx, userID)
}

func TestSignOutClearsProfileCache(t *testing.T) {
	ctx := context.Background()
	cb := &countingBackend{Backend: memory.New()}
	cache := profile.NewCache(cb)
	m := NewManager(cb, cache, nil, time.Second, zap.NewNop())
	t.Cleanup(m.Close)
	m.Bootstrap(ctx)

	snap, err := m.SignUp(ctx, "alice@example.com", "password123", "alice")
	require.NoError(t, err)
	require.Eventually(t, authoritative(m), time.Second, 5*time.Millisecond)

	// Let background resolutions finish so the count below is stable.
	time.Sleep(50 * time.Millisecond)
	before := cb.fetches.Load()

	// Cached now: a lookup costs no round trip.
	_, err = cache.Lookup(ctx, snap.UserID)
	require.NoError(t, err)
	assert.Equal(t, before, cb.fetches.Load())

	require.NoError(t, m.SignOut(ctx))
	assert.False(t, m.Snapshot().Authenticated())

	// Post-sign-out the cache is cold again.
	_, err = cache.Lookup(ctx, snap.UserID)
	require.NoError(t, err)
	assert.Equal(t, before+1, cb.fetches.Load())
}

// gatedFetchBackend holds every profile fetch until the gate opens, so a test
// can finish a resolution after the session it belonged to is gone.
type gatedFetchBackend struct {
	*memory.Backend
	gate chan struct{}
}

func (g *gatedFetchBackend) FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	<-g.gate
	return g.Backend.FetchProfile(ctx, userID)
}

func TestStaleProfileResolutionIsDiscarded(t *testing.T) {
	ctx := context.Background()
	gb := &gatedFetchBackend{Backend: memory.New(), gate: make(chan struct{})}
	m := NewManager(gb, profile.NewCache(gb), nil, time.Second, zap.NewNop())
	t.Cleanup(m.Close)
	m.Bootstrap(ctx)

	_, err := m.SignUp(ctx, "alice@example.com", "password123", "alice")
	require.NoError(t, err)

	// Sign out while the background resolution is still parked, then let it
	// finish. Its answer belongs to a dead session generation and must not
	// resurrect an identity.
	require.NoError(t, m.SignOut(ctx))
	close(gb.gate)

	time.Sleep(50 * time.Millisecond)
	snap := m.Snapshot()
	assert.False(t, snap.Authenticated())
	assert.Nil(t, snap.Profile)
}

func TestOnChangeDeliversCurrentSnapshotImmediately(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	m := newManager(t, b)
	m.Bootstrap(ctx)

	got := make(chan Snapshot, 16)
	handle := m.OnChange(func(s Snapshot) { got <- s })
	defer m.Unregister(handle)

	first := <-got
	assert.Equal(t, StateReady, first.State)

	_, err := m.SignUp(ctx, "alice@example.com", "password123", "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case s := <-got:
			return s.Authenticated()
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
