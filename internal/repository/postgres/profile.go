package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tarun-08/pingme/internal/models"
)

type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) Create(ctx context.Context, userID uuid.UUID, username, email, passwordHash string) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (user_id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, user_id, username, email, created_at`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, userID, username, email, passwordHash).Scan(
		&p.ID,
		&p.UserID,
		&p.Username,
		&p.Email,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, user_id, username, email, created_at
		FROM profiles
		WHERE user_id = $1`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.ID,
		&p.UserID,
		&p.Username,
		&p.Email,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// GetByEmail returns the profile plus the stored password hash. The hash
// rides alongside instead of on the model so it can't end up in a JSON
// response by accident.
func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (*models.Profile, string, error) {
	query := `
		SELECT id, user_id, username, email, password_hash, created_at
		FROM profiles
		WHERE email = $1`

	var p models.Profile
	var hash string
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&p.ID,
		&p.UserID,
		&p.Username,
		&p.Email,
		&hash,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("get profile by email: %w", err)
	}
	return &p, hash, nil
}

func (s *ProfileStore) List(ctx context.Context, excluding uuid.UUID) ([]models.Profile, error) {
	query := `
		SELECT id, user_id, username, email, created_at
		FROM profiles
		WHERE id <> $1
		ORDER BY username ASC`

	rows, err := s.pool.Query(ctx, query, excluding)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]models.Profile, 0)
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Username,
			&p.Email,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}
