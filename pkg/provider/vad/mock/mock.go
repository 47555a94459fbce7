// Package mock provides a scripted vad.Engine for tests.
package mock

import (
	"sync"

	"github.com/tbjorklund/parlo/pkg/provider/vad"
)

// Engine is a scripted vad.Engine. Each session it creates replays the Script
// in order, then repeats the final event for any further frames.
type Engine struct {
	// Script is the sequence of events returned by successive ProcessFrame
	// calls.
	Script []vad.VADEvent

	// Err, when set, is returned by every ProcessFrame call.
	Err error

	// NewSessionErr, when set, is returned by NewSession.
	NewSessionErr error

	mu       sync.Mutex
	sessions []*Session
}

var _ vad.Engine = (*Engine)(nil)

// NewSession creates a replaying session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := &Session{engine: e, cfg: cfg}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

// Sessions returns all sessions created so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, len(e.sessions))
	copy(out, e.sessions)
	return out
}

// Session is a scripted vad.SessionHandle recording every call.
type Session struct {
	engine *Engine
	cfg    vad.Config

	mu     sync.Mutex
	pos    int
	frames int
	resets int
	closed bool
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame returns the next scripted event. With an empty script it
// returns silence.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.engine.Err != nil {
		return vad.VADEvent{}, s.engine.Err
	}
	script := s.engine.Script
	if len(script) == 0 {
		return vad.VADEvent{Type: vad.VADSilence}, nil
	}
	ev := script[min(s.pos, len(script)-1)]
	s.pos++
	return ev, nil
}

// Reset records the call and rewinds the script.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.pos = 0
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FrameCount returns how many frames were processed.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// ResetCount returns how many times Reset was called.
func (s *Session) ResetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
