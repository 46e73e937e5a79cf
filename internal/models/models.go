package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the application-level user record shown in the directory.
//
// Why two ids?
//   - UserID is the identity issued by the auth subsystem. It never changes
//     and it's what sessions and tokens carry.
//   - ID is the directory-row key. Conversations reference profile ids, not
//     identities, so the auth subsystem stays swappable.
//   - The two are 1:1, unique both ways — the backend enforces that.
//
// Username defaults to the local part of the email when the user didn't pick
// one at signup. The backend applies that default; the client displays
// whatever comes back.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is the unique channel between exactly two profiles.
//
// User1ID/User2ID hold the pair in whatever order the creating side supplied.
// Uniqueness of the UNORDERED pair is the backend's job (the pair is
// canonicalized before the uniqueness check), so clients must look a pair up
// in either order and never assume which side is stored first.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	User1ID   uuid.UUID `json:"user1_id"`
	User2ID   uuid.UUID `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single message inside a conversation. Append-only — no edits,
// no deletes.
//
// Why uuid for ID and not bigserial?
//   - The client mints placeholder ids locally for optimistic sends, and a
//     placeholder must never collide with a server-assigned id. Random uuids
//     give both sides an id space where collision is not a concern.
//   - Ordering comes from CreatedAt, not from the id.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is the ephemeral authenticated state: which identity the client is
// acting as and the token that proves it. Exactly one authoritative Session
// exists per running client; it is owned by the session manager and mutated
// only through its operations.
type Session struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
