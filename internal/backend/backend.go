package backend

import (
	"context"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/models"
)

// Why context.Context as the first parameter on every method?
//   - Every method here crosses the network (or pretends to, in the memory
//     implementation). Cancelling the caller must cancel the call.
//   - The session manager relies on this for its bounded bootstrap: it gives
//     GetCurrentSession a deadline and moves on when it fires.

// Subscription is a standing push channel. Unsubscribe releases it; it is
// safe to call more than once, and no callback fires after it returns.
type Subscription interface {
	Unsubscribe()
}

// Backend is the full contract the client core consumes. The production
// implementation lives in backend/httpapi (REST + websocket against the
// pingme server); backend/memory implements the same semantics in-process
// for tests.
type Backend interface {
	// GetCurrentSession returns the session this client currently holds,
	// or (nil, nil) when there is none. "No session" is a normal outcome,
	// not an error.
	GetCurrentSession(ctx context.Context) (*models.Session, error)

	// OnSessionChange registers a callback fired whenever the session is
	// replaced or cleared (sign-in, sign-up, sign-out, token refresh).
	// The callback receives nil when the session is gone. It keeps firing
	// until the returned subscription is released.
	OnSessionChange(fn func(*models.Session)) Subscription

	// SignUp creates an account. The backend auto-provisions a profile for
	// the new identity, defaulting username to the email local part when
	// blank. Returns the fresh session.
	SignUp(ctx context.Context, email, password, username string) (*models.Session, error)

	// SignIn authenticates with email and password. Invalid credentials
	// surface as *AuthError.
	SignIn(ctx context.Context, email, password string) (*models.Session, error)

	// SignOut invalidates the current session.
	SignOut(ctx context.Context) error

	// FetchProfile resolves the profile belonging to an identity. Returns
	// ErrNotFound if it hasn't been provisioned (yet).
	FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// ListProfiles returns the directory ordered by username ascending,
	// excluding the given profile id (the caller's own row).
	ListProfiles(ctx context.Context, excluding uuid.UUID) ([]models.Profile, error)

	// FindConversation looks up the conversation between two profile ids,
	// matching EITHER stored order. Returns (nil, nil) when none exists.
	FindConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)

	// CreateConversation creates the conversation for a pair, stored in the
	// supplied order. Fails with ErrConflict when the unordered pair
	// already exists — callers recover by re-querying.
	CreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)

	// ListMessages returns the most recent messages of a conversation,
	// ordered by created_at ascending, at most limit of them.
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)

	// InsertMessage persists a message and returns the authoritative record
	// (server id, server timestamp).
	InsertMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*models.Message, error)

	// SubscribeInserts opens a push subscription for newly committed
	// messages in one conversation. Deliveries arrive in commit order for
	// that conversation; onInsert may be called from another goroutine.
	SubscribeInserts(ctx context.Context, conversationID uuid.UUID, onInsert func(models.Message)) (Subscription, error)
}
