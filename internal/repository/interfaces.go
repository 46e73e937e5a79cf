package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/models"
)

// Every method takes context.Context first: these all touch the database,
// so a cancelled request must cancel its queries.
//
// "Not found" is returned as (nil, nil) from Get/Find methods — the handler
// decides whether that's a 404 or a normal outcome.

// ErrDuplicatePair is reported by ConversationRepository.Create when the
// unordered pair already has a conversation. Distinguished from other insert
// failures because the API maps it to 409 and clients recover from it.
type duplicatePairError struct{}

func (duplicatePairError) Error() string { return "conversation pair already exists" }

var ErrDuplicatePair error = duplicatePairError{}

// ProfileRepository handles directory rows. A profile row also carries the
// credentials for its identity — signup provisions both in one insert, which
// stands in for the original trigger-based auto-provisioning.
type ProfileRepository interface {
	// Create inserts a profile for a fresh identity. Username must already
	// be defaulted by the caller.
	Create(ctx context.Context, userID uuid.UUID, username, email, passwordHash string) (*models.Profile, error)

	// GetByUserID resolves a profile by identity. Returns nil, nil if the
	// identity has no profile.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// GetByEmail looks a profile up by email, for login. Also returns the
	// stored password hash (kept off the Profile model so it can never
	// leak through a JSON response).
	GetByEmail(ctx context.Context, email string) (*models.Profile, string, error)

	// List returns the directory ordered by username ascending, excluding
	// one profile id (the caller's own row). Returns an empty slice, not
	// nil, so JSON serializes to [].
	List(ctx context.Context, excluding uuid.UUID) ([]models.Profile, error)
}

// ConversationRepository handles the two-party conversation records.
type ConversationRepository interface {
	// FindByPair returns the conversation for an unordered pair, matching
	// either stored order. Returns nil, nil if none exists.
	FindByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)

	// Create inserts a conversation with the pair in the supplied order.
	// Returns ErrDuplicatePair when the unordered pair already exists.
	Create(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)

	// GetByID returns a conversation, or nil, nil if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
}

// MessageRepository handles message persistence. Messages are append-only;
// there is deliberately no update or delete.
type MessageRepository interface {
	// Create persists a message and returns it with ID and CreatedAt
	// populated by the database.
	Create(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*models.Message, error)

	// ListRecent returns the most recent `limit` messages of a
	// conversation, ordered created_at ascending.
	ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
}
