// Package mock provides scripted in-memory implementations of the audio
// transport interfaces for tests.
package mock

import (
	"context"
	"sync"

	"github.com/tbjorklund/parlo/pkg/audio"
)

// Source is a scripted audio.Source fed from a slice of frames or pushed to at
// runtime. Safe for concurrent use.
type Source struct {
	mu     sync.Mutex
	ch     chan audio.Frame
	closed bool
}

var _ audio.Source = (*Source)(nil)

// NewSource creates a Source with the given buffer capacity.
func NewSource(buffer int) *Source {
	return &Source{ch: make(chan audio.Frame, buffer)}
}

// Push delivers a frame to consumers. Returns false if the source is closed.
func (s *Source) Push(frame audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- frame
	return true
}

// Frames returns the frame channel.
func (s *Source) Frames() <-chan audio.Frame { return s.ch }

// Close closes the frame channel. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Sink records every write and flush for assertions. Safe for concurrent use.
type Sink struct {
	mu      sync.Mutex
	writes  [][]byte
	flushes int
	closed  bool

	// WriteErr, when set, is returned by every Write call.
	WriteErr error

	// OnWrite, when set, is invoked with each written chunk before recording.
	OnWrite func(pcm []byte)
}

var _ audio.Sink = (*Sink)(nil)

// NewSink creates an empty recording sink.
func NewSink() *Sink { return &Sink{} }

// Write records the chunk. Respects ctx cancellation.
func (s *Sink) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	if s.OnWrite != nil {
		s.OnWrite(pcm)
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.writes = append(s.writes, buf)
	return nil
}

// Flush records that a flush happened.
func (s *Sink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

// Close marks the sink closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Writes returns a copy of all recorded chunks in write order.
func (s *Sink) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// Flushes returns how many times Flush was called.
func (s *Sink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Platform returns a fixed Source/Sink pair from Open.
type Platform struct {
	Src *Source
	Snk *Sink

	// OpenErr, when set, is returned by Open.
	OpenErr error
}

var _ audio.Platform = (*Platform)(nil)

// NewPlatform creates a Platform with a fresh Source and Sink.
func NewPlatform() *Platform {
	return &Platform{Src: NewSource(64), Snk: NewSink()}
}

// Open returns the scripted pair.
func (p *Platform) Open(ctx context.Context) (audio.Source, audio.Sink, error) {
	if p.OpenErr != nil {
		return nil, nil, p.OpenErr
	}
	return p.Src, p.Snk, nil
}
