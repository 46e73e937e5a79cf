// Package send implements optimistic message submission: append locally,
// reconcile with the server record, roll back on failure.
package send

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/client/stream"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

// Controller drives sends for one open conversation.
//
// The flow on Send:
//  1. validate (trimmed-empty content and missing conversation/sender are
//     rejected before anything becomes visible)
//  2. append a placeholder with a locally minted id, clear the draft, set
//     the sending flag so a second submit can't double-fire
//  3. write to the backend
//  4. success: swap the placeholder for the server record (the stream's
//     seen-set then absorbs the push echo); failure: remove the placeholder
//     and restore the draft exactly as typed, so nothing is silently lost
//
// The sending flag clears on both paths, unconditionally.
type Controller struct {
	backend backend.Backend
	stream  *stream.Stream
	logger  *zap.Logger
	now     func() time.Time

	conversationID uuid.UUID
	senderID       uuid.UUID

	mu      sync.Mutex
	draft   string
	sending bool
}

func NewController(b backend.Backend, s *stream.Stream, conversationID, senderID uuid.UUID, logger *zap.Logger) *Controller {
	return &Controller{
		backend:        b,
		stream:         s,
		logger:         logger,
		now:            time.Now,
		conversationID: conversationID,
		senderID:       senderID,
	}
}

// SetDraft replaces the current draft text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// Draft returns the current draft text.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Sending reports whether a write is in flight.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Send submits the current draft. A concurrent submit while one is in
// flight is a no-op.
func (c *Controller) Send(ctx context.Context) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil
	}
	content := strings.TrimSpace(c.draft)
	if content == "" {
		c.mu.Unlock()
		return &backend.ValidationError{Reason: "message content is empty"}
	}
	if c.conversationID == uuid.Nil || c.senderID == uuid.Nil {
		c.mu.Unlock()
		return &backend.ValidationError{Reason: "no active conversation"}
	}

	placeholder := models.Message{
		ID:             uuid.New(),
		ConversationID: c.conversationID,
		SenderID:       c.senderID,
		Content:        content,
		CreatedAt:      c.now().UTC(),
	}
	original := c.draft
	c.draft = ""
	c.sending = true
	c.mu.Unlock()

	c.stream.Append(placeholder)

	msg, err := c.backend.InsertMessage(ctx, c.conversationID, c.senderID, content)

	c.mu.Lock()
	c.sending = false
	if err != nil {
		// Roll back: the placeholder disappears and the draft comes back
		// exactly as typed, ready for retry.
		c.draft = original
		c.mu.Unlock()

		c.stream.Remove(placeholder.ID)
		c.logger.Warn("message send failed", zap.Error(err))
		return fmt.Errorf("send message: %w", err)
	}
	c.mu.Unlock()

	c.stream.Replace(placeholder.ID, *msg)
	return nil
}
