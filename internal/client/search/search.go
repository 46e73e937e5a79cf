// Package search filters the cached directory list and coalesces rapid
// re-filter requests with a trailing-edge debounce.
package search

import (
	"strings"
	"sync"
	"time"

	"github.com/tarun-08/pingme/internal/models"
)

// Filter is a pure function over the cached profile sequence: profiles whose
// username or email contains the query, case-insensitively. An empty query
// returns everything. The input order (username ascending, from the backend)
// is preserved.
func Filter(profiles []models.Profile, query string) []models.Profile {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]models.Profile(nil), profiles...)
	}

	out := make([]models.Profile, 0, len(profiles))
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.Username), query) ||
			strings.Contains(strings.ToLower(p.Email), query) {
			out = append(out, p)
		}
	}
	return out
}

// Debouncer runs only the LAST function handed to it once the quiet period
// elapses (trailing edge). Stop cancels whatever is pending; call it on
// dispose so a queued callback can't fire into a torn-down view.
type Debouncer struct {
	d time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{d: d}
}

// Do schedules fn, replacing any previously scheduled call.
func (db *Debouncer) Do(fn func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.stopped {
		return
	}
	if db.timer != nil {
		db.timer.Stop()
	}
	db.timer = time.AfterFunc(db.d, func() {
		db.mu.Lock()
		stopped := db.stopped
		db.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Stop cancels any pending call and rejects future ones.
func (db *Debouncer) Stop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.stopped = true
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
}
