package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-chars-long!"

func TestGenerateAndParseToken(t *testing.T) {
	userID := uuid.New()
	profileID := uuid.New()

	token, err := GenerateToken(userID, profileID, "alice@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, profileID, claims.ProfileID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "pingme", claims.Issuer)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(uuid.New(), uuid.New(), "alice@example.com", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "a-different-secret-entirely-here!!")
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken(uuid.New(), uuid.New(), "alice@example.com", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	assert.Error(t, err)
}

func TestTokenExpiryWithoutVerification(t *testing.T) {
	token, err := GenerateToken(uuid.New(), uuid.New(), "alice@example.com", testSecret, time.Hour)
	require.NoError(t, err)

	// The client only knows the expiry, not the secret.
	exp, err := TokenExpiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	_, err = TokenExpiry("junk")
	assert.Error(t, err)
}
