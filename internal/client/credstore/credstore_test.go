package credstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadWithoutSave(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := Credentials{
		UserID:    uuid.New(),
		Email:     "alice@example.com",
		Token:     "header.payload.signature",
		ExpiresAt: time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.Token, got.Token)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Credentials{Email: "old@example.com", Token: "old"}))
	require.NoError(t, s.Save(Credentials{Email: "new@example.com", Token: "new"}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", got.Token)
}

func TestClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Credentials{Token: "tok"}))
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear()) // clearing an empty store is fine

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(Credentials{Email: "alice@example.com", Token: "tok"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
}
