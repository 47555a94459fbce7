package audio

import (
	"errors"
	"sync"
	"time"
)

// OverflowPolicy selects what a [FrameQueue] does when a frame is pushed while
// the queue is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest queued frame to make room for the new one.
	// This keeps ingestion latency flat at the cost of losing the stalest
	// audio — the right trade-off while the agent holds a long utterance and
	// the user is silent anyway.
	DropOldest OverflowPolicy = iota

	// BlockWithTimeout blocks the producer until space frees up or the
	// configured timeout elapses, then drops the new frame.
	BlockWithTimeout
)

// String returns the human-readable name of the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case BlockWithTimeout:
		return "block-with-timeout"
	default:
		return "unknown"
	}
}

// ErrQueueClosed is returned by [FrameQueue.Push] after [FrameQueue.Close].
var ErrQueueClosed = errors.New("audio: frame queue is closed")

// FrameQueue is a bounded FIFO buffer decoupling frame ingestion from the
// variable latency of downstream pipeline stages. Ingestion must never block
// on stage latency (transcription and synthesis calls run for hundreds of
// milliseconds), so the queue absorbs bursts and applies its overflow policy
// instead of growing without bound.
//
// FrameQueue is safe for one producer and one consumer running concurrently.
type FrameQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	frames  []Frame
	cap     int
	policy  OverflowPolicy
	timeout time.Duration
	closed  bool
	dropped uint64

	out chan Frame
}

// NewFrameQueue creates a queue holding at most capacity frames with the given
// overflow policy. timeout applies only to [BlockWithTimeout]. capacity must
// be > 0.
func NewFrameQueue(capacity int, policy OverflowPolicy, timeout time.Duration) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &FrameQueue{
		cap:     capacity,
		policy:  policy,
		timeout: timeout,
		out:     make(chan Frame),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

// Push enqueues frame, applying the overflow policy if the queue is full.
// Returns [ErrQueueClosed] after Close. A frame dropped by policy is not an
// error; dropped counts are reported by [FrameQueue.Dropped].
func (q *FrameQueue) Push(frame Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if len(q.frames) >= q.cap {
		switch q.policy {
		case DropOldest:
			q.frames = q.frames[1:]
			q.dropped++
		case BlockWithTimeout:
			deadline := time.Now().Add(q.timeout)
			for len(q.frames) >= q.cap && !q.closed {
				if !q.waitUntil(deadline) {
					q.dropped++
					return nil // timed out: drop the new frame
				}
			}
			if q.closed {
				return ErrQueueClosed
			}
		}
	}

	q.frames = append(q.frames, frame)
	q.cond.Broadcast()
	return nil
}

// Frames returns the consumer side of the queue. The channel is closed after
// [FrameQueue.Close] once remaining frames have drained.
func (q *FrameQueue) Frames() <-chan Frame {
	return q.out
}

// Dropped returns the number of frames discarded by the overflow policy so
// far.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops the queue. Frames already buffered are still delivered to the
// consumer before the Frames channel closes. Safe to call more than once.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// waitUntil blocks on the cond condition until signalled or the deadline
// passes. Returns false on deadline expiry. Must be called with q.mu held.
func (q *FrameQueue) waitUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	// sync.Cond has no timed wait; arm a timer that broadcasts on expiry.
	timer := time.AfterFunc(remaining, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	q.cond.Wait()
	return time.Now().Before(deadline)
}

// pump moves frames from the internal buffer to the consumer channel. Runs
// until Close and the buffer is empty.
func (q *FrameQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.frames) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.frames) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		frame := q.frames[0]
		q.frames = q.frames[1:]
		q.cond.Broadcast()
		q.mu.Unlock()

		q.out <- frame
	}
}
