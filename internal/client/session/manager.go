// Package session owns the authentication lifecycle of the client: bootstrap,
// sign-in/up/out, and the readiness signal everything else consumes.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/client/credstore"
	"github.com/tarun-08/pingme/internal/client/profile"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

// State is the session manager's position in its lifecycle.
//
// Why a state machine instead of "initialized" booleans?
//   - There is exactly one legal path: Uninitialized → Bootstrapping → Ready.
//     Re-entering bootstrap is impossible by construction, not by a flag
//     someone remembered to check.
type State int

const (
	StateUninitialized State = iota
	StateBootstrapping
	StateReady
)

// Snapshot is the published auth state. Ready + zero UserID means
// "ready, anonymous" — the signed-out view.
type Snapshot struct {
	State  State
	UserID uuid.UUID
	Email  string

	// Profile is nil while anonymous. Right after sign-in it holds a
	// provisional record derived from the email local part; the
	// authoritative directory row replaces it once fetched.
	Profile *models.Profile
}

func (s Snapshot) Authenticated() bool {
	return s.State == StateReady && s.UserID != uuid.Nil
}

// Listener receives every published snapshot. Callbacks run outside the
// manager's lock but must still return quickly.
type Listener func(Snapshot)

const resolveTimeout = 10 * time.Second

// Manager serializes every auth-affecting operation and publishes one
// authoritative Snapshot. It owns the ProfileCache and the stored
// credentials; nothing else mutates them.
type Manager struct {
	backend          backend.Backend
	profiles         *profile.Cache
	creds            *credstore.Store // optional; nil means no persistence
	logger           *zap.Logger
	bootstrapTimeout time.Duration

	mu         sync.Mutex
	state      State
	userID     uuid.UUID
	email      string
	profile    *models.Profile
	generation uint64
	listeners  map[int]Listener
	nextID     int
	changeSub  backend.Subscription
}

func NewManager(b backend.Backend, profiles *profile.Cache, creds *credstore.Store, bootstrapTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		backend:          b,
		profiles:         profiles,
		creds:            creds,
		logger:           logger,
		bootstrapTimeout: bootstrapTimeout,
		listeners:        make(map[int]Listener),
	}
}

// Bootstrap establishes the initial session state. It runs the real work at
// most once — later calls return the current snapshot immediately — and it
// returns within the configured timeout no matter what the backend does.
//
// The timeout is a liveness-over-freshness tradeoff: a slow handshake must
// not pin the UI on a spinner, so we publish Ready(anonymous) and let the
// late answer apply afterwards if the session generation hasn't moved on.
func (m *Manager) Bootstrap(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.state != StateUninitialized {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.state = StateBootstrapping
	gen := m.generation
	m.mu.Unlock()

	type result struct {
		sess *models.Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := m.backend.GetCurrentSession(ctx)
		ch <- result{sess, err}
	}()

	timer := time.NewTimer(m.bootstrapTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		m.applyBootstrap(gen, r.sess, r.err)
	case <-timer.C:
		m.logger.Warn("session bootstrap timed out, continuing unauthenticated",
			zap.Duration("timeout", m.bootstrapTimeout))
		m.forceReady(gen)
		// Keep listening: if the handshake eventually answers and no
		// sign-in/out happened meanwhile, the late truth still applies.
		go func() {
			r := <-ch
			m.applyBootstrap(gen, r.sess, r.err)
		}()
	case <-ctx.Done():
		m.forceReady(gen)
	}

	m.watchSessionChanges()
	return m.Snapshot()
}

// Close releases the standing session-change subscription. Required on
// teardown — a leaked subscription means duplicate callbacks after the next
// construction.
func (m *Manager) Close() {
	m.mu.Lock()
	sub := m.changeSub
	m.changeSub = nil
	m.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// SignIn authenticates and publishes Ready(identity) before the directory
// row arrives: a provisional profile derived from the email local part goes
// out immediately so navigation isn't gated on a second round trip, and the
// authoritative profile is republished in the background.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Snapshot, error) {
	sess, err := m.backend.SignIn(ctx, email, password)
	if err != nil {
		return m.Snapshot(), fmt.Errorf("sign in: %w", err)
	}
	m.adoptSession(sess, localPart(sess.Email))
	m.persistCredentials(sess)
	return m.Snapshot(), nil
}

// SignUp creates the account (the backend provisions the profile) and then
// follows the same publish path as SignIn, using the desired username for
// the provisional profile.
func (m *Manager) SignUp(ctx context.Context, email, password, username string) (Snapshot, error) {
	sess, err := m.backend.SignUp(ctx, email, password, username)
	if err != nil {
		return m.Snapshot(), fmt.Errorf("sign up: %w", err)
	}
	provisional := username
	if provisional == "" {
		provisional = localPart(sess.Email)
	}
	m.adoptSession(sess, provisional)
	m.persistCredentials(sess)
	return m.Snapshot(), nil
}

// SignOut invalidates the session, clears the profile cache and the stored
// credentials, and publishes Ready(anonymous). The backend error is surfaced;
// local state is cleared regardless, so a flaky network can't trap the user
// in a signed-in UI.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.backend.SignOut(ctx)

	m.clearSession()
	if m.creds != nil {
		if cerr := m.creds.Clear(); cerr != nil {
			m.logger.Warn("failed to clear stored credentials", zap.Error(cerr))
		}
	}

	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// OnChange registers a listener for snapshot updates and returns a handle
// for Unregister. The current snapshot is delivered immediately so the
// consumer doesn't start blind.
func (m *Manager) OnChange(fn Listener) int {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	snap := m.snapshotLocked()
	m.mu.Unlock()

	fn(snap)
	return id
}

func (m *Manager) Unregister(handle int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, handle)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// watchSessionChanges registers the standing listener for session
// replacement/teardown happening outside a foreground call (token refresh,
// logout elsewhere). The callback is fire-and-forget: it updates published
// state once resolved and never blocks the notifier beyond a map write.
func (m *Manager) watchSessionChanges() {
	sub := m.backend.OnSessionChange(func(sess *models.Session) {
		if sess == nil {
			m.clearSession()
			return
		}
		m.adoptSession(sess, localPart(sess.Email))
	})

	m.mu.Lock()
	prev := m.changeSub
	m.changeSub = sub
	m.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}
}

// applyBootstrap lands the GetCurrentSession answer. A backend failure
// degrades to "no session" — bootstrap is the one place where auth errors
// are logged instead of surfaced, because there is no user action to attach
// them to.
func (m *Manager) applyBootstrap(gen uint64, sess *models.Session, err error) {
	if err != nil {
		m.logger.Warn("session bootstrap failed, continuing unauthenticated", zap.Error(err))
		sess = nil
	}
	if sess == nil {
		m.forceReady(gen)
		return
	}

	m.mu.Lock()
	if gen != m.generation {
		// Somebody signed in or out while we were waiting. Their state
		// is newer than this answer; drop it.
		m.mu.Unlock()
		return
	}
	m.setIdentityLocked(sess, localPart(sess.Email))
	resolveGen := m.generation
	userID := sess.UserID
	snap, listeners := m.publishLocked()
	m.mu.Unlock()

	notify(listeners, snap)
	go m.resolveProfile(resolveGen, userID)
}

// adoptSession replaces the published identity with a fresh session. Each
// adoption bumps the generation so async work started for the previous
// session can recognize itself as stale.
func (m *Manager) adoptSession(sess *models.Session, provisionalUsername string) {
	m.mu.Lock()
	m.generation++
	m.setIdentityLocked(sess, provisionalUsername)
	resolveGen := m.generation
	userID := sess.UserID
	snap, listeners := m.publishLocked()
	m.mu.Unlock()

	notify(listeners, snap)
	go m.resolveProfile(resolveGen, userID)
}

func (m *Manager) clearSession() {
	m.mu.Lock()
	m.generation++
	m.state = StateReady
	m.userID = uuid.Nil
	m.email = ""
	m.profile = nil
	snap, listeners := m.publishLocked()
	m.mu.Unlock()

	m.profiles.Clear()
	notify(listeners, snap)
}

// forceReady transitions Bootstrapping → Ready with whatever identity is
// currently known (none, unless a sign-in raced ahead).
func (m *Manager) forceReady(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state == StateReady {
		m.mu.Unlock()
		return
	}
	m.state = StateReady
	snap, listeners := m.publishLocked()
	m.mu.Unlock()

	notify(listeners, snap)
}

// resolveProfile fetches the authoritative directory row in the background
// and republishes. The generation captured at start is re-checked before the
// write: a resolution that outlived its session (sign-out or replacement
// happened meanwhile) is discarded, never applied to now-foreign state.
func (m *Manager) resolveProfile(gen uint64, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	p, err := m.profiles.Lookup(ctx, userID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			// Provisioning trigger hasn't caught up. The provisional
			// profile stays; the next lookup will see the real row.
			m.logger.Debug("profile not provisioned yet", zap.String("user_id", userID.String()))
		} else {
			m.logger.Warn("background profile resolution failed", zap.Error(err))
		}
		return
	}

	m.mu.Lock()
	if gen != m.generation || m.userID != userID {
		m.mu.Unlock()
		return
	}
	m.profile = p
	snap, listeners := m.publishLocked()
	m.mu.Unlock()

	notify(listeners, snap)
}

func (m *Manager) setIdentityLocked(sess *models.Session, provisionalUsername string) {
	m.state = StateReady
	m.userID = sess.UserID
	m.email = sess.Email
	m.profile = &models.Profile{
		UserID:   sess.UserID,
		Username: provisionalUsername,
		Email:    sess.Email,
	}
}

func (m *Manager) persistCredentials(sess *models.Session) {
	if m.creds == nil {
		return
	}
	err := m.creds.Save(credstore.Credentials{
		UserID:    sess.UserID,
		Email:     sess.Email,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		m.logger.Warn("failed to persist credentials", zap.Error(err))
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:  m.state,
		UserID: m.userID,
		Email:  m.email,
	}
	if m.profile != nil {
		p := *m.profile
		snap.Profile = &p
	}
	return snap
}

func (m *Manager) publishLocked() (Snapshot, []Listener) {
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return m.snapshotLocked(), listeners
}

func notify(listeners []Listener, snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
