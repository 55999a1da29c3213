// Package assistant – history.go keeps the bounded per-conversation
// transcript the orchestrator replays into each prompt. The system
// prompt is composed fresh every request and never stored.
package assistant

import (
	"sync"
)

// HistoryStore is the conversation memory contract. Implementations
// must be safe for concurrent use.
type HistoryStore interface {
	// Append adds a turn to a conversation, evicting the oldest turns
	// beyond the configured limit.
	Append(convID string, msg Message) error

	// Read returns a snapshot of the conversation window, oldest first.
	Read(convID string) ([]Message, error)

	// Close releases any backing resources.
	Close() error
}

// MemoryHistory is the in-process history store: a bounded slice per
// conversation, created lazily and never explicitly destroyed.
type MemoryHistory struct {
	mu    sync.Mutex
	limit int
	convs map[string][]Message
}

// NewMemoryHistory creates an in-memory history store keeping at most
// limit turns per conversation.
func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = 20
	}
	return &MemoryHistory{
		limit: limit,
		convs: make(map[string][]Message),
	}
}

// Append adds a turn, trimming the oldest beyond the limit.
func (h *MemoryHistory) Append(convID string, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.convs[convID], msg)
	if over := len(msgs) - h.limit; over > 0 {
		msgs = msgs[over:]
	}
	h.convs[convID] = msgs
	return nil
}

// Read returns a copy of the conversation window, oldest first.
func (h *MemoryHistory) Read(convID string) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := h.convs[convID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (h *MemoryHistory) Close() error { return nil }
