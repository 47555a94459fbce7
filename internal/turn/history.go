package turn

import "sync"

// defaultMaxHistory bounds the conversation log when no limit is configured.
const defaultMaxHistory = 32

// History is the bounded, append-only conversation log. The coordinator is
// its single writer; the planner reads immutable snapshots, so an in-flight
// generation is never affected by turns appended after it started.
type History struct {
	mu    sync.RWMutex
	max   int
	turns []Turn
}

// NewHistory creates a History keeping at most max turns, evicting the oldest
// first. max <= 0 uses the default bound.
func NewHistory(max int) *History {
	if max <= 0 {
		max = defaultMaxHistory
	}
	return &History{max: max}
}

// Append adds a finalized turn, evicting the oldest turns beyond the bound.
func (h *History) Append(t Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
	if len(h.turns) > h.max {
		// Copy instead of re-slicing so evicted turns can be collected.
		trimmed := make([]Turn, h.max)
		copy(trimmed, h.turns[len(h.turns)-h.max:])
		h.turns = trimmed
	}
}

// Snapshot returns a copy of the log, oldest first. The copy is safe to read
// while the coordinator keeps appending.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of archived turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
