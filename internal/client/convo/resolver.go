// Package convo maps an unordered pair of profiles to its one conversation.
package convo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

// pairKey identifies an UNORDERED pair: both (a,b) and (b,a) produce the
// same key, so racing resolutions from either direction coalesce.
type pairKey struct {
	lo, hi uuid.UUID
}

func keyFor(a, b uuid.UUID) pairKey {
	if a.String() < b.String() {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

type call struct {
	done chan struct{}
	conv *models.Conversation
	err  error
}

// Resolver returns exactly one conversation id per profile pair, creating
// the conversation lazily on first contact.
//
// Two races are handled here:
//   - Local re-entry (a view opening the same conversation twice): calls for
//     the same pair are single-flighted; followers wait for the leader.
//   - Remote creation race (the other user initiates at the same moment):
//     create fails with ErrConflict, which is not a failure at all — it
//     means the conversation now exists, so we re-query and return it.
type Resolver struct {
	backend backend.Backend
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[pairKey]*call
}

func NewResolver(b backend.Backend, logger *zap.Logger) *Resolver {
	return &Resolver{
		backend:  b,
		logger:   logger,
		inflight: make(map[pairKey]*call),
	}
}

// Resolve returns the conversation between two profile ids, creating it if
// absent. Both argument orders yield the same conversation.
func (r *Resolver) Resolve(ctx context.Context, initiator, other uuid.UUID) (*models.Conversation, error) {
	if initiator == uuid.Nil || other == uuid.Nil {
		return nil, &backend.ValidationError{Reason: "both profile ids are required"}
	}
	if initiator == other {
		return nil, &backend.ValidationError{Reason: "cannot open a conversation with yourself"}
	}

	key := keyFor(initiator, other)

	r.mu.Lock()
	if c, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		// Follower: wait for the leader's answer.
		select {
		case <-c.done:
			return c.conv, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	r.inflight[key] = c
	r.mu.Unlock()

	c.conv, c.err = r.resolve(ctx, initiator, other)
	close(c.done)

	// Drop the slot so a later open (or a retry after failure) performs a
	// fresh lookup. The single-flight guards re-entry, not the lifetime.
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()

	return c.conv, c.err
}

func (r *Resolver) resolve(ctx context.Context, initiator, other uuid.UUID) (*models.Conversation, error) {
	// The backend matches either stored order, so one find call covers
	// conversations created from the opposite direction.
	conv, err := r.backend.FindConversation(ctx, initiator, other)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = r.backend.CreateConversation(ctx, initiator, other)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, backend.ErrConflict) {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	// Lost the creation race: the pair exists now. Converge on it.
	r.logger.Debug("conversation creation conflicted, re-querying",
		zap.String("initiator", initiator.String()),
		zap.String("other", other.String()))

	conv, err = r.backend.FindConversation(ctx, initiator, other)
	if err != nil {
		return nil, fmt.Errorf("re-find conversation after conflict: %w", err)
	}
	if conv == nil {
		// Conflict without a visible row would mean the backend's pair
		// uniqueness and its lookup disagree.
		return nil, fmt.Errorf("conversation conflicted but was not found")
	}
	return conv, nil
}
