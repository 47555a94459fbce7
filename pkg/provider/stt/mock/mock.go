// Package mock provides a scripted stt.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/tbjorklund/parlo/pkg/provider/stt"
)

// Provider is a scripted stt.Provider. Each StartSegment call consumes the
// next entry from Script: the session delivers that entry's partials and then
// its final once CloseSend is called. When the script runs out, sessions
// deliver an empty final.
type Provider struct {
	// Script holds one entry per expected segment, in order.
	Script []Segment

	// StartErr, when set, is returned by StartSegment.
	StartErr error

	mu       sync.Mutex
	next     int
	sessions []*Session
}

// Segment scripts one session's output.
type Segment struct {
	// Partials are delivered immediately when the session opens.
	Partials []string

	// Final is delivered after CloseSend.
	Final string

	// Fail, when true, makes the session close its Finals channel without
	// delivering a transcript, simulating a recognition failure.
	Fail bool
}

var _ stt.Provider = (*Provider)(nil)

// StartSegment opens a session replaying the next scripted segment.
func (p *Provider) StartSegment(ctx context.Context, cfg stt.SegmentConfig) (stt.SessionHandle, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	p.mu.Lock()
	var script Segment
	if p.next < len(p.Script) {
		script = p.Script[p.next]
	}
	p.next++
	s := &Session{
		script:   script,
		cfg:      cfg,
		partials: make(chan stt.Transcript, 8),
		finals:   make(chan stt.Transcript, 1),
		sendDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()

	for _, text := range script.Partials {
		s.partials <- stt.Transcript{Text: text}
	}
	go s.run()
	return s, nil
}

// Sessions returns all sessions opened so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session is a scripted stt.SessionHandle that records the audio it receives.
type Session struct {
	script Segment
	cfg    stt.SegmentConfig

	partials chan stt.Transcript
	finals   chan stt.Transcript

	mu     sync.Mutex
	audio  [][]byte
	closed bool

	sendDone  chan struct{}
	done      chan struct{}
	sendOnce  sync.Once
	closeOnce sync.Once
}

var _ stt.SessionHandle = (*Session)(nil)

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.audio = append(s.audio, buf)
	return nil
}

// Partials returns the scripted partials channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the scripted finals channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// CloseSend releases the scripted final.
func (s *Session) CloseSend() error {
	s.sendOnce.Do(func() { close(s.sendDone) })
	return nil
}

// Close tears the session down.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Audio returns all chunks received so far.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) run() {
	defer close(s.partials)
	defer close(s.finals)

	select {
	case <-s.sendDone:
	case <-s.done:
		return
	}
	if s.script.Fail {
		return
	}
	select {
	case s.finals <- stt.Transcript{Text: s.script.Final, IsFinal: true}:
	case <-s.done:
	}
}
