package send

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/backend/memory"
	"github.com/tarun-08/pingme/internal/client/stream"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*memory.Backend, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	b := memory.New()
	alice, err := b.SignUp(ctx, "alice@example.com", "password123", "alice")
	require.NoError(t, err)
	bob, err := b.SignUp(ctx, "bob@example.com", "password123", "bob")
	require.NoError(t, err)
	conv, err := b.CreateConversation(ctx, b.ProfileID(alice.UserID), b.ProfileID(bob.UserID))
	require.NoError(t, err)
	return b, conv.ID, b.ProfileID(alice.UserID)
}

func TestSendAppendsExactlyOneServerRecord(t *testing.T) {
	ctx := context.Background()
	b, convID, alice := setup(t)

	feed, err := stream.Open(ctx, b, convID, nil, zap.NewNop())
	require.NoError(t, err)
	defer feed.Close()

	c := NewController(b, feed, convID, alice, zap.NewNop())
	c.SetDraft("  hi  ")
	require.NoError(t, c.Send(ctx))

	// The memory backend echoes the insert synchronously, so the stream saw
	// both the push delivery and the replace. Exactly one record survives.
	msgs := feed.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content, "content is trimmed before submit")
	assert.Equal(t, alice, msgs[0].SenderID)
	assert.Equal(t, "", c.Draft(), "draft clears on success")
	assert.False(t, c.Sending())
}

func TestSendRejectsEmptyDraft(t *testing.T) {
	ctx := context.Background()
	b, convID, alice := setup(t)

	feed, err := stream.Open(ctx, b, convID, nil, zap.NewNop())
	require.NoError(t, err)
	defer feed.Close()

	c := NewController(b, feed, convID, alice, zap.NewNop())
	c.SetDraft("   ")

	var valErr *backend.ValidationError
	assert.ErrorAs(t, c.Send(ctx), &valErr)
	assert.Equal(t, 0, feed.Len(), "nothing becomes visible for an invalid draft")
}

// failingBackend rejects every insert, simulating a write that dies on the
// wire after the placeholder is already visible.
type failingBackend struct {
	*memory.Backend
}

func (f *failingBackend) InsertMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*models.Message, error) {
	return nil, &backend.NetworkError{Op: "insert message", Err: context.DeadlineExceeded}
}

func TestSendFailureRollsBackAndRestoresDraft(t *testing.T) {
	ctx := context.Background()
	b, convID, alice := setup(t)
	fb := &failingBackend{Backend: b}

	feed, err := stream.Open(ctx, b, convID, nil, zap.NewNop())
	require.NoError(t, err)
	defer feed.Close()

	c := NewController(fb, feed, convID, alice, zap.NewNop())
	c.SetDraft("hello there ")

	err = c.Send(ctx)
	require.Error(t, err)
	var netErr *backend.NetworkError
	assert.ErrorAs(t, err, &netErr)

	assert.Equal(t, 0, feed.Len(), "placeholder rolled back")
	assert.Equal(t, "hello there ", c.Draft(), "draft restored exactly as typed")
	assert.False(t, c.Sending(), "sending flag clears on failure too")

	// The restored draft is immediately retryable against a healthy backend.
	retry := NewController(b, feed, convID, alice, zap.NewNop())
	retry.SetDraft(c.Draft())
	require.NoError(t, retry.Send(ctx))
	assert.Equal(t, 1, feed.Len())
}

func TestSendWithoutConversationRejected(t *testing.T) {
	ctx := context.Background()
	b, convID, _ := setup(t)

	feed, err := stream.Open(ctx, b, convID, nil, zap.NewNop())
	require.NoError(t, err)
	defer feed.Close()

	c := NewController(b, feed, uuid.Nil, uuid.Nil, zap.NewNop())
	c.SetDraft("hi")

	var valErr *backend.ValidationError
	assert.ErrorAs(t, c.Send(ctx), &valErr)
}
