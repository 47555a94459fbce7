// Package segment turns per-frame voice activity decisions into speech
// segment boundaries.
//
// The VAD classifies individual frames; the segmenter applies utterance-level
// debouncing on top: speech must be sustained before a segment opens (so lip
// smacks and short noises do not trigger turns), and silence must be
// sustained before it closes (so natural mid-sentence pauses do not split an
// utterance in two). Frames buffered during the opening debounce are replayed
// into the segment, so the start of the utterance is never lost.
package segment

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tbjorklund/parlo/pkg/audio"
	"github.com/tbjorklund/parlo/pkg/provider/vad"
)

// EventType classifies a boundary event.
type EventType int

const (
	// SegmentStart opens a new speech segment. The event carries the frames
	// buffered during the opening debounce, in capture order.
	SegmentStart EventType = iota

	// SegmentAudio carries one in-segment frame.
	SegmentAudio

	// SegmentEnd closes the current segment. The frames buffered during the
	// closing silence window are included so trailing audio reaches the
	// recognizer.
	SegmentEnd
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case SegmentStart:
		return "segment-start"
	case SegmentAudio:
		return "segment-audio"
	case SegmentEnd:
		return "segment-end"
	default:
		return "unknown"
	}
}

// Event is a segment boundary or in-segment audio emitted by Process.
type Event struct {
	Type EventType

	// Frames holds the audio belonging to this event: the debounce buffer
	// for SegmentStart, a single frame for SegmentAudio, the trailing
	// silence for SegmentEnd.
	Frames []audio.Frame
}

// Config holds segmenter tuning.
type Config struct {
	// MinSpeech is how long speech must be sustained before a segment opens.
	MinSpeech time.Duration

	// MinSilence is how long silence must be sustained before a segment
	// closes. This is the end-of-turn pause, so it dominates response
	// latency; too short splits utterances at natural pauses.
	MinSilence time.Duration

	// FrameDuration is the duration of each input frame.
	FrameDuration time.Duration
}

// DefaultConfig returns the tuning used by the pipeline unless overridden.
func DefaultConfig() Config {
	return Config{
		MinSpeech:     200 * time.Millisecond,
		MinSilence:    500 * time.Millisecond,
		FrameDuration: 20 * time.Millisecond,
	}
}

// Segmenter drives a VAD session over the frame stream and emits segment
// boundaries. Not safe for concurrent use; the frame loop owns it.
//
// When the primary VAD session fails repeatedly, the segmenter switches to a
// fallback session (if one is supplied) and keeps running in degraded mode
// rather than silencing the pipeline.
type Segmenter struct {
	cfg      Config
	session  vad.SessionHandle
	fallback vad.SessionHandle

	state       state
	speechMs    int
	silenceMs   int
	pending     []audio.Frame // buffered frames while debouncing a segment open
	trailing    []audio.Frame // buffered frames while debouncing a segment close
	errStreak   int
	degraded    bool
	frameMillis int
}

type state int

const (
	stateIdle state = iota
	statePendingSpeech
	stateInSegment
	stateClosing
)

// errStreakLimit is how many consecutive VAD failures trigger the fallback.
const errStreakLimit = 3

// New creates a Segmenter over the given VAD session. fallback may be nil;
// without one, persistent VAD failure stops segmentation with an error.
func New(cfg Config, session vad.SessionHandle, fallback vad.SessionHandle) (*Segmenter, error) {
	if session == nil {
		return nil, fmt.Errorf("segment: vad session must not be nil")
	}
	if cfg.FrameDuration <= 0 {
		return nil, fmt.Errorf("segment: frame duration must be positive, got %v", cfg.FrameDuration)
	}
	if cfg.MinSpeech <= 0 || cfg.MinSilence <= 0 {
		return nil, fmt.Errorf("segment: debounce durations must be positive")
	}
	return &Segmenter{
		cfg:         cfg,
		session:     session,
		fallback:    fallback,
		frameMillis: int(cfg.FrameDuration.Milliseconds()),
	}, nil
}

// Degraded reports whether the segmenter has switched to its fallback
// detector.
func (s *Segmenter) Degraded() bool {
	return s.degraded
}

// Process classifies one frame and returns any boundary events it produces.
// Events appear in pipeline order; a single frame can close one segment and
// never opens another in the same call.
func (s *Segmenter) Process(frame audio.Frame) ([]Event, error) {
	ev, err := s.classify(frame)
	if err != nil {
		return nil, err
	}
	speech := ev.Type == vad.VADSpeechStart || ev.Type == vad.VADSpeechContinue

	switch s.state {
	case stateIdle:
		if !speech {
			return nil, nil
		}
		s.state = statePendingSpeech
		s.speechMs = s.frameMillis
		s.pending = append(s.pending[:0], frame)
		return nil, nil

	case statePendingSpeech:
		if !speech {
			// Speech did not sustain; drop the buffer.
			s.state = stateIdle
			s.pending = s.pending[:0]
			s.speechMs = 0
			return nil, nil
		}
		s.pending = append(s.pending, frame)
		s.speechMs += s.frameMillis
		if time.Duration(s.speechMs)*time.Millisecond >= s.cfg.MinSpeech {
			frames := make([]audio.Frame, len(s.pending))
			copy(frames, s.pending)
			s.pending = s.pending[:0]
			s.speechMs = 0
			s.state = stateInSegment
			return []Event{{Type: SegmentStart, Frames: frames}}, nil
		}
		return nil, nil

	case stateInSegment:
		if speech {
			return []Event{{Type: SegmentAudio, Frames: []audio.Frame{frame}}}, nil
		}
		s.state = stateClosing
		s.silenceMs = s.frameMillis
		s.trailing = append(s.trailing[:0], frame)
		return nil, nil

	case stateClosing:
		if speech {
			// The pause was shorter than the end-of-turn threshold; the
			// buffered silence belongs inside the segment.
			events := make([]Event, 0, len(s.trailing)+1)
			for _, f := range s.trailing {
				events = append(events, Event{Type: SegmentAudio, Frames: []audio.Frame{f}})
			}
			events = append(events, Event{Type: SegmentAudio, Frames: []audio.Frame{frame}})
			s.trailing = s.trailing[:0]
			s.silenceMs = 0
			s.state = stateInSegment
			return events, nil
		}
		s.trailing = append(s.trailing, frame)
		s.silenceMs += s.frameMillis
		if time.Duration(s.silenceMs)*time.Millisecond >= s.cfg.MinSilence {
			frames := make([]audio.Frame, len(s.trailing))
			copy(frames, s.trailing)
			s.trailing = s.trailing[:0]
			s.silenceMs = 0
			s.state = stateIdle
			return []Event{{Type: SegmentEnd, Frames: frames}}, nil
		}
		return nil, nil
	}
	return nil, nil
}

// Flush force-closes an open segment, as when the input stream ends
// mid-utterance. Returns a SegmentEnd event when a segment was open.
func (s *Segmenter) Flush() []Event {
	switch s.state {
	case stateInSegment, stateClosing:
		frames := make([]audio.Frame, len(s.trailing))
		copy(frames, s.trailing)
		s.trailing = s.trailing[:0]
		s.silenceMs = 0
		s.state = stateIdle
		return []Event{{Type: SegmentEnd, Frames: frames}}
	default:
		s.state = stateIdle
		s.pending = s.pending[:0]
		return nil
	}
}

// classify runs the frame through the active VAD session, switching to the
// fallback after repeated failures.
func (s *Segmenter) classify(frame audio.Frame) (vad.VADEvent, error) {
	ev, err := s.session.ProcessFrame(frame.Data)
	if err == nil {
		s.errStreak = 0
		return ev, nil
	}

	s.errStreak++
	if s.errStreak < errStreakLimit {
		slog.Warn("segment: vad classification failed, treating frame as silence",
			"error", err, "streak", s.errStreak)
		return vad.VADEvent{Type: vad.VADSilence}, nil
	}
	if s.fallback == nil {
		return vad.VADEvent{}, fmt.Errorf("segment: vad failed %d times with no fallback: %w", s.errStreak, err)
	}
	if !s.degraded {
		s.degraded = true
		slog.Error("segment: switching to fallback voice detection", "error", err)
	}
	s.session = s.fallback
	ev, ferr := s.session.ProcessFrame(frame.Data)
	if ferr != nil {
		return vad.VADEvent{}, fmt.Errorf("segment: fallback vad failed: %w", ferr)
	}
	s.errStreak = 0
	return ev, nil
}
