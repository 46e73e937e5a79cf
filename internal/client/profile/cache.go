// Package profile memoizes directory lookups by identity.
package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/models"
)

// Cache maps identity -> resolved Profile for the lifetime of a session.
//
// Two deliberate choices:
//   - No in-flight dedup. Concurrent lookups for the same key may each hit
//     the backend; the first success wins the map slot and later results are
//     identical projections of the same row. Redundant fetches during a race
//     are cheaper than a single-flight layer here.
//   - Misses are NOT cached. A profile is provisioned by a backend trigger on
//     first authentication, so "not found now" can become "found" a moment
//     later. Caching the miss would hide the new row until eviction — and
//     there is no eviction.
type Cache struct {
	mu      sync.RWMutex
	backend backend.Backend
	byUser  map[uuid.UUID]models.Profile
}

func NewCache(b backend.Backend) *Cache {
	return &Cache{
		backend: b,
		byUser:  make(map[uuid.UUID]models.Profile),
	}
}

// Lookup returns the cached profile for an identity, fetching it from the
// backend on a miss. A backend ErrNotFound passes through uncached.
func (c *Cache) Lookup(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	c.mu.RLock()
	if p, ok := c.byUser[userID]; ok {
		c.mu.RUnlock()
		return &p, nil
	}
	c.mu.RUnlock()

	fetched, err := c.backend.FetchProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	c.mu.Lock()
	// Another fetch may have landed first. Keep whichever is present —
	// both are the same backend row.
	if existing, ok := c.byUser[userID]; ok {
		c.mu.Unlock()
		return &existing, nil
	}
	c.byUser[userID] = *fetched
	c.mu.Unlock()

	copied := *fetched
	return &copied, nil
}

// Put stores a profile the caller already holds (e.g. resolved during
// sign-up), so the next Lookup doesn't refetch it.
func (c *Cache) Put(p models.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser[p.UserID] = p
}

// Clear drops every entry. Called on sign-out — cached rows belong to the
// session that fetched them.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser = make(map[uuid.UUID]models.Profile)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUser)
}
