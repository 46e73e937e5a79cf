package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/models"
)

func signUp(t *testing.T, b *Backend, email, username string) *models.Session {
	t.Helper()
	sess, err := b.SignUp(context.Background(), email, "password123", username)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func TestSignUpProvisionsProfile(t *testing.T) {
	b := New()
	sess := signUp(t, b, "alice@example.com", "")

	prof, err := b.FetchProfile(context.Background(), sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", prof.Username, "blank username defaults to the email local part")
	assert.Equal(t, "alice@example.com", prof.Email)
	assert.NotEqual(t, uuid.Nil, prof.ID)
}

func TestSignInWrongPassword(t *testing.T) {
	b := New()
	signUp(t, b, "alice@example.com", "alice")

	_, err := b.SignIn(context.Background(), "alice@example.com", "nope")
	var authErr *backend.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestFetchProfileNotFound(t *testing.T) {
	b := New()
	_, err := b.FetchProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestListProfilesExcludesCallerAndSorts(t *testing.T) {
	ctx := context.Background()
	b := New()
	alice := signUp(t, b, "alice@example.com", "alice")
	signUp(t, b, "carol@example.com", "carol")
	signUp(t, b, "bob@example.com", "bob")

	aliceProfile := b.ProfileID(alice.UserID)
	profiles, err := b.ListProfiles(ctx, aliceProfile)
	require.NoError(t, err)

	require.Len(t, profiles, 2)
	assert.Equal(t, "bob", profiles[0].Username)
	assert.Equal(t, "carol", profiles[1].Username)
}

func TestFindConversationEitherOrder(t *testing.T) {
	ctx := context.Background()
	b := New()
	alice := b.ProfileID(signUp(t, b, "alice@example.com", "alice").UserID)
	bob := b.ProfileID(signUp(t, b, "bob@example.com", "bob").UserID)

	created, err := b.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	forward, err := b.FindConversation(ctx, alice, bob)
	require.NoError(t, err)
	reverse, err := b.FindConversation(ctx, bob, alice)
	require.NoError(t, err)

	require.NotNil(t, forward)
	require.NotNil(t, reverse)
	assert.Equal(t, created.ID, forward.ID)
	assert.Equal(t, created.ID, reverse.ID)
}

func TestCreateConversationConflictsOnReversedPair(t *testing.T) {
	ctx := context.Background()
	b := New()
	alice := b.ProfileID(signUp(t, b, "alice@example.com", "alice").UserID)
	bob := b.ProfileID(signUp(t, b, "bob@example.com", "bob").UserID)

	_, err := b.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	_, err = b.CreateConversation(ctx, bob, alice)
	assert.ErrorIs(t, err, backend.ErrConflict)
	assert.Equal(t, 1, b.ConversationCount())
}

func TestCreateConversationRejectsSelf(t *testing.T) {
	b := New()
	id := uuid.New()
	_, err := b.CreateConversation(context.Background(), id, id)
	var valErr *backend.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestListMessagesLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	b := New()
	alice := b.ProfileID(signUp(t, b, "alice@example.com", "alice").UserID)
	bob := b.ProfileID(signUp(t, b, "bob@example.com", "bob").UserID)
	conv, err := b.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := b.InsertMessage(ctx, conv.ID, alice, content)
		require.NoError(t, err)
	}

	msgs, err := b.ListMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "limit keeps only the most recent messages")
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestInsertMessageFansOutUntilUnsubscribed(t *testing.T) {
	ctx := context.Background()
	b := New()
	alice := b.ProfileID(signUp(t, b, "alice@example.com", "alice").UserID)
	bob := b.ProfileID(signUp(t, b, "bob@example.com", "bob").UserID)
	conv, err := b.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	var delivered []models.Message
	sub, err := b.SubscribeInserts(ctx, conv.ID, func(m models.Message) {
		delivered = append(delivered, m)
	})
	require.NoError(t, err)

	sent, err := b.InsertMessage(ctx, conv.ID, alice, "hi")
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, sent.ID, delivered[0].ID)

	sub.Unsubscribe()
	sub.Unsubscribe() // second release is a no-op

	_, err = b.InsertMessage(ctx, conv.ID, bob, "after unsubscribe")
	require.NoError(t, err)
	assert.Len(t, delivered, 1, "no delivery after unsubscribe")
}

func TestInsertMessageRejectsEmptyContent(t *testing.T) {
	b := New()
	var valErr *backend.ValidationError
	_, err := b.InsertMessage(context.Background(), uuid.New(), uuid.New(), "   ")
	assert.ErrorAs(t, err, &valErr)
}

func TestSessionChangeNotifications(t *testing.T) {
	ctx := context.Background()
	b := New()

	var events []*models.Session
	sub := b.OnSessionChange(func(s *models.Session) {
		events = append(events, s)
	})
	defer sub.Unsubscribe()

	sess := signUp(t, b, "alice@example.com", "alice")
	require.NoError(t, b.SignOut(ctx))

	require.Len(t, events, 2)
	require.NotNil(t, events[0])
	assert.Equal(t, sess.UserID, events[0].UserID)
	assert.Nil(t, events[1], "sign-out notifies with nil")
}
