package turn

import (
	"fmt"
	"testing"
)

func TestHistoryEvictsOldestBeyondBound(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(Turn{ID: fmt.Sprintf("t%d", i), Role: RoleUser, Text: fmt.Sprintf("msg %d", i)})
	}

	snap := h.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("history holds %d turns, want 3", len(snap))
	}
	if snap[0].ID != "t2" || snap[2].ID != "t4" {
		t.Fatalf("history = %v, want the newest three turns oldest-first", snap)
	}
}

func TestHistorySnapshotIsImmutable(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	h.Append(Turn{ID: "a", Role: RoleUser, Text: "hello"})

	snap := h.Snapshot()
	h.Append(Turn{ID: "b", Role: RoleAgent, Text: "hi"})
	snap[0].Text = "mutated"

	if len(snap) != 1 {
		t.Fatalf("snapshot grew to %d entries after a later append", len(snap))
	}
	if got := h.Snapshot(); got[0].Text != "hello" {
		t.Fatalf("mutating a snapshot leaked into history: %q", got[0].Text)
	}
}

func TestHistoryDefaultBound(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	for i := 0; i < defaultMaxHistory+10; i++ {
		h.Append(Turn{ID: fmt.Sprintf("t%d", i)})
	}
	if h.Len() != defaultMaxHistory {
		t.Fatalf("history holds %d turns, want the default bound %d", h.Len(), defaultMaxHistory)
	}
}
