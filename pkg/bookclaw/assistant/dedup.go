// Package assistant – dedup.go guards against double-handling when the
// transport redelivers a message. Membership only, no payload; the
// whole set is dropped on a fixed wall-clock period rather than per
// entry, which bounds memory at the cost of re-processing a duplicate
// that repeats across a reset boundary.
package assistant

import (
	"context"
	"sync"
	"time"
)

// DedupCache tracks handled message IDs.
type DedupCache struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	window time.Duration
}

// NewDedupCache creates a cache that fully resets every window.
func NewDedupCache(window time.Duration) *DedupCache {
	if window <= 0 {
		window = time.Hour
	}
	return &DedupCache{
		seen:   make(map[string]struct{}),
		window: window,
	}
}

// MarkIfNew records the ID and reports whether it was unseen. Check and
// mark are one atomic step, so two near-simultaneous deliveries of the
// same ID cannot both pass.
func (d *DedupCache) MarkIfNew(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

// Seen reports whether the ID has been handled since the last reset.
func (d *DedupCache) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.seen[id]
	return ok
}

// Len returns the current number of tracked IDs.
func (d *DedupCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Run clears the cache on every window tick until ctx is cancelled.
func (d *DedupCache) Run(ctx context.Context) {
	ticker := time.NewTicker(d.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reset()
		}
	}
}

func (d *DedupCache) reset() {
	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.mu.Unlock()
}
