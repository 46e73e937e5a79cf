// Package memory implements the backend contract in-process.
//
// It exists for tests and local experiments: same semantics as the real
// server (either-order conversation lookup, pair conflict on create, push
// fanout to subscribers) without a network in the way. Deliveries happen
// synchronously on the inserting goroutine, which keeps tests deterministic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/models"
)

type account struct {
	userID   uuid.UUID
	password string
}

type Backend struct {
	mu sync.Mutex

	accounts      map[string]account            // email -> account
	profiles      map[uuid.UUID]models.Profile  // user id -> profile
	conversations []models.Conversation
	messages      map[uuid.UUID][]models.Message // conversation id -> commit order

	session          *models.Session
	sessionListeners map[int]func(*models.Session)
	insertListeners  map[uuid.UUID]map[int]func(models.Message)
	nextListenerID   int
}

var _ backend.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		accounts:         make(map[string]account),
		profiles:         make(map[uuid.UUID]models.Profile),
		messages:         make(map[uuid.UUID][]models.Message),
		sessionListeners: make(map[int]func(*models.Session)),
		insertListeners:  make(map[uuid.UUID]map[int]func(models.Message)),
	}
}

func (b *Backend) GetCurrentSession(ctx context.Context) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &backend.NetworkError{Op: "get session", Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, nil
	}
	s := *b.session
	return &s, nil
}

func (b *Backend) OnSessionChange(fn func(*models.Session)) backend.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextListenerID
	b.nextListenerID++
	b.sessionListeners[id] = fn
	return &subscription{release: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.sessionListeners, id)
	}}
}

func (b *Backend) SignUp(ctx context.Context, email, password, username string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, &backend.ValidationError{Reason: "email and password are required"}
	}

	b.mu.Lock()
	if _, exists := b.accounts[email]; exists {
		b.mu.Unlock()
		return nil, &backend.AuthError{Reason: "email already registered"}
	}

	// The real backend provisions the profile with a trigger on first
	// authentication; here signup and provisioning are one step.
	if username == "" {
		username = localPart(email)
	}
	userID := uuid.New()
	b.accounts[email] = account{userID: userID, password: password}
	b.profiles[userID] = models.Profile{
		ID:        uuid.New(),
		UserID:    userID,
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	session := b.replaceSessionLocked(userID, email)
	listeners := b.snapshotSessionListenersLocked()
	b.mu.Unlock()

	notifySession(listeners, session)
	return session, nil
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	b.mu.Lock()
	acct, exists := b.accounts[email]
	if !exists || acct.password != password {
		b.mu.Unlock()
		// One message for both cases, as the real backend does.
		return nil, &backend.AuthError{Reason: "invalid email or password"}
	}
	session := b.replaceSessionLocked(acct.userID, email)
	listeners := b.snapshotSessionListenersLocked()
	b.mu.Unlock()

	notifySession(listeners, session)
	return session, nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.session = nil
	listeners := b.snapshotSessionListenersLocked()
	b.mu.Unlock()

	notifySession(listeners, nil)
	return nil
}

func (b *Backend) FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[userID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (b *Backend) ListProfiles(ctx context.Context, excluding uuid.UUID) ([]models.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Profile, 0, len(b.profiles))
	for _, p := range b.profiles {
		if p.ID == excluding {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (b *Backend) FindConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.findPairLocked(userA, userB); c != nil {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (b *Backend) CreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	if userA == userB {
		return nil, &backend.ValidationError{Reason: "conversation requires two distinct profiles"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.findPairLocked(userA, userB) != nil {
		return nil, backend.ErrConflict
	}
	conv := models.Conversation{
		ID:        uuid.New(),
		User1ID:   userA,
		User2ID:   userB,
		CreatedAt: time.Now().UTC(),
	}
	b.conversations = append(b.conversations, conv)
	copied := conv
	return &copied, nil
}

func (b *Backend) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.Message, len(all))
	copy(out, all)
	return out, nil
}

func (b *Backend) InsertMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &backend.ValidationError{Reason: "message content is empty"}
	}

	b.mu.Lock()
	if !b.conversationExistsLocked(conversationID) {
		b.mu.Unlock()
		return nil, backend.ErrNotFound
	}
	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	b.messages[conversationID] = append(b.messages[conversationID], msg)

	listeners := make([]func(models.Message), 0, len(b.insertListeners[conversationID]))
	for _, fn := range b.insertListeners[conversationID] {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	// Push delivery: synchronous, in commit order. This includes the echo
	// back to the sender's own subscription, exactly like the real channel.
	for _, fn := range listeners {
		fn(msg)
	}

	copied := msg
	return &copied, nil
}

func (b *Backend) SubscribeInserts(ctx context.Context, conversationID uuid.UUID, onInsert func(models.Message)) (backend.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.insertListeners[conversationID] == nil {
		b.insertListeners[conversationID] = make(map[int]func(models.Message))
	}
	id := b.nextListenerID
	b.nextListenerID++
	b.insertListeners[conversationID][id] = onInsert

	return &subscription{release: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.insertListeners[conversationID], id)
	}}, nil
}

// ProfileID is a test convenience: the profile id provisioned for an
// identity, or uuid.Nil when the identity is unknown.
func (b *Backend) ProfileID(userID uuid.UUID) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.profiles[userID]; ok {
		return p.ID
	}
	return uuid.Nil
}

// ConversationCount reports how many conversations exist. Tests use it to
// assert pair uniqueness under racing creates.
func (b *Backend) ConversationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conversations)
}

func (b *Backend) replaceSessionLocked(userID uuid.UUID, email string) *models.Session {
	s := &models.Session{
		UserID:    userID,
		Email:     email,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	}
	b.session = s
	copied := *s
	return &copied
}

func (b *Backend) snapshotSessionListenersLocked() []func(*models.Session) {
	out := make([]func(*models.Session), 0, len(b.sessionListeners))
	for _, fn := range b.sessionListeners {
		out = append(out, fn)
	}
	return out
}

func (b *Backend) findPairLocked(userA, userB uuid.UUID) *models.Conversation {
	for i := range b.conversations {
		c := &b.conversations[i]
		if (c.User1ID == userA && c.User2ID == userB) ||
			(c.User1ID == userB && c.User2ID == userA) {
			return c
		}
	}
	return nil
}

func (b *Backend) conversationExistsLocked(id uuid.UUID) bool {
	for i := range b.conversations {
		if b.conversations[i].ID == id {
			return true
		}
	}
	return false
}

func notifySession(listeners []func(*models.Session), s *models.Session) {
	for _, fn := range listeners {
		var copied *models.Session
		if s != nil {
			c := *s
			copied = &c
		}
		fn(copied)
	}
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.release)
}
