package turn

import (
	"sync"
	"sync/atomic"
)

// CancelToken signals the cancellation of one agent turn. The coordinator
// fires it on barge-in; every stage loop working on that turn observes it at
// each iteration boundary and stops producing output for the turn.
//
// The token is the only per-turn object mutated from two goroutines, so its
// signal is lock-free: a cheap atomic check for polling plus a closed channel
// for select-based waiting.
type CancelToken struct {
	fired atomic.Bool
	done  chan struct{}
	once  sync.Once
}

// NewCancelToken returns an unfired token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel fires the token. Safe to call more than once; only the first call
// has an effect.
func (t *CancelToken) Cancel() {
	t.once.Do(func() {
		t.fired.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether the token has fired.
func (t *CancelToken) Cancelled() bool {
	return t.fired.Load()
}

// Done returns a channel that is closed when the token fires.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}
