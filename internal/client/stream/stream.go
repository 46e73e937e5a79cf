// Package stream keeps one conversation's message sequence live: an initial
// page plus push-delivered inserts, deduplicated and in order.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

// DefaultPageSize bounds the initial history load: the most recent 100
// messages, returned ascending.
const DefaultPageSize = 100

// Stream is the per-conversation live feed.
//
// The sequence is an append-only log with an id-presence set for O(1)
// duplicate checks. The main duplicate source is the echo of our own sends:
// the optimistic controller swaps a placeholder for the server record, and
// moments later the push channel delivers that same record. The seen-set
// drops it.
//
// Ordering: appends happen as delivered. The backend emits commit order per
// conversation, so no client-side re-sort is done.
type Stream struct {
	conversationID uuid.UUID
	logger         *zap.Logger

	mu       sync.Mutex
	messages []models.Message
	seen     map[uuid.UUID]struct{}
	sub      backend.Subscription
	closed   bool
	onUpdate func()
}

// Open loads the initial page and subscribes to inserts for one
// conversation. onUpdate (optional) fires after every visible change; it is
// called without the stream's lock held.
//
// The caller owns the stream and must Close it when the conversation view
// goes away — an open subscription across a conversation switch is both a
// leak and a duplicate-delivery bug.
func Open(ctx context.Context, b backend.Backend, conversationID uuid.UUID, onUpdate func(), logger *zap.Logger) (*Stream, error) {
	history, err := b.ListMessages(ctx, conversationID, DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("load message history: %w", err)
	}

	s := &Stream{
		conversationID: conversationID,
		logger:         logger,
		messages:       append([]models.Message(nil), history...),
		seen:           make(map[uuid.UUID]struct{}, len(history)),
		onUpdate:       onUpdate,
	}
	for _, m := range history {
		s.seen[m.ID] = struct{}{}
	}

	sub, err := b.SubscribeInserts(ctx, conversationID, s.handleInsert)
	if err != nil {
		return nil, fmt.Errorf("subscribe to inserts: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		// Closed while the subscribe round trip was in flight.
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil, fmt.Errorf("stream closed during open")
	}
	s.sub = sub
	s.mu.Unlock()

	return s, nil
}

// Close releases the push subscription. Safe to call more than once; pushes
// arriving after Close are dropped, not applied to a dead view.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// ConversationID returns the conversation this stream is bound to.
func (s *Stream) ConversationID() uuid.UUID {
	return s.conversationID
}

// Messages returns a copy of the current visible sequence.
func (s *Stream) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the visible sequence length.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Append adds a message if its id isn't already present. Returns whether it
// was added. This is also the entry point for optimistic placeholders.
func (s *Stream) Append(msg models.Message) bool {
	s.mu.Lock()
	added := s.appendLocked(msg)
	cb := s.onUpdate
	s.mu.Unlock()

	if added && cb != nil {
		cb()
	}
	return added
}

// Replace swaps the placeholder entry for the authoritative server record.
//
// Edge case: the push echo can beat the write's response. Then the real id
// is already in the sequence, and the right move is to just drop the
// placeholder — swapping would duplicate the server record.
func (s *Stream) Replace(placeholderID uuid.UUID, authoritative models.Message) {
	s.mu.Lock()
	if _, echoed := s.seen[authoritative.ID]; echoed {
		s.removeLocked(placeholderID)
	} else {
		replaced := false
		for i := range s.messages {
			if s.messages[i].ID == placeholderID {
				s.messages[i] = authoritative
				replaced = true
				break
			}
		}
		delete(s.seen, placeholderID)
		if replaced {
			s.seen[authoritative.ID] = struct{}{}
		} else {
			// Placeholder already gone (view churn). Record the id so
			// the upcoming echo is still recognized.
			s.appendLocked(authoritative)
		}
	}
	cb := s.onUpdate
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Remove deletes a message by id (failed placeholder rollback).
func (s *Stream) Remove(id uuid.UUID) {
	s.mu.Lock()
	s.removeLocked(id)
	cb := s.onUpdate
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// handleInsert is the push-delivery path.
func (s *Stream) handleInsert(msg models.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if msg.ConversationID != s.conversationID {
		// The subscription is scoped server-side; anything else arriving
		// here is a backend bug worth logging, not applying.
		s.logger.Warn("dropping pushed message for foreign conversation",
			zap.String("got", msg.ConversationID.String()),
			zap.String("want", s.conversationID.String()))
		s.mu.Unlock()
		return
	}
	added := s.appendLocked(msg)
	cb := s.onUpdate
	s.mu.Unlock()

	if added && cb != nil {
		cb()
	}
}

func (s *Stream) appendLocked(msg models.Message) bool {
	if _, dup := s.seen[msg.ID]; dup {
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	return true
}

func (s *Stream) removeLocked(id uuid.UUID) {
	if _, ok := s.seen[id]; !ok {
		return
	}
	delete(s.seen, id)
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}
