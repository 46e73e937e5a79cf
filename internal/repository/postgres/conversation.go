package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tarun-08/pingme/internal/models"
	"github.com/tarun-08/pingme/internal/repository"
)

// uniqueViolation is the Postgres error code raised when an insert hits a
// unique index — here, the canonicalized conversation-pair index.
const uniqueViolation = "23505"

type ConversationStore struct {
	pool *pgxpool.Pool
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

// FindByPair matches the pair in EITHER stored order. Rows created from the
// opposite direction store the columns swapped, and we must find those too —
// this is the client-visible half of pair uniqueness.
func (s *ConversationStore) FindByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM conversations
		WHERE (user1_id = $1 AND user2_id = $2)
		   OR (user1_id = $2 AND user2_id = $1)`

	var c models.Conversation
	err := s.pool.QueryRow(ctx, query, userA, userB).Scan(
		&c.ID,
		&c.User1ID,
		&c.User2ID,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &c, nil
}

// Create inserts the pair in the supplied order. The unique index on
// (LEAST, GREATEST) of the pair does the canonicalization, so two clients
// racing from opposite directions collide regardless of column order; the
// loser gets ErrDuplicatePair and is expected to re-query.
func (s *ConversationStore) Create(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (user1_id, user2_id, created_at)
		VALUES ($1, $2, now())
		RETURNING id, user1_id, user2_id, created_at`

	var c models.Conversation
	err := s.pool.QueryRow(ctx, query, userA, userB).Scan(
		&c.ID,
		&c.User1ID,
		&c.User2ID,
		&c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicatePair
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return &c, nil
}

func (s *ConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM conversations
		WHERE id = $1`

	var c models.Conversation
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.User1ID,
		&c.User2ID,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}
