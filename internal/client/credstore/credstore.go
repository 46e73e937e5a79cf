// Package credstore persists the session token between runs.
//
// Only credentials live here. Messages and directory data are never written
// to disk — they are refetched per session.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketAuth = []byte("auth")
	keyCurrent = []byte("current")

	// ErrNoCredentials means no token is stored — a normal first-run state.
	ErrNoCredentials = errors.New("no stored credentials")
)

// Credentials is the JSON record stored in the auth bucket.
type Credentials struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the credential database at path and ensures the
// auth bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open credstore: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAuth)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init credstore bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(c Credentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal credentials: %w", err)
		}
		if err := tx.Bucket(bucketAuth).Put(keyCurrent, data); err != nil {
			return fmt.Errorf("put credentials: %w", err)
		}
		return nil
	})
}

func (s *Store) Load() (*Credentials, error) {
	var c *Credentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAuth).Get(keyCurrent)
		if data == nil {
			return ErrNoCredentials
		}
		c = &Credentials{}
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("unmarshal credentials: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Clear removes the stored token. Called on sign-out.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAuth).Delete(keyCurrent)
	})
}
