// Package energy implements a pure-Go RMS energy VAD engine.
//
// It classifies frames by root-mean-square level with hysteresis: entering
// speech requires several consecutive loud frames, leaving it requires several
// consecutive quiet ones. That makes it robust enough to drive segmentation on
// clean close-mic audio without any model dependency, and it doubles as the
// fallback detector when a model-backed engine is unavailable.
package energy

import (
	"errors"
	"fmt"
	"math"

	"github.com/tbjorklund/parlo/pkg/provider/vad"
)

// Defaults tuned for 16 kHz 20 ms close-mic frames.
const (
	defaultSpeechRMS  = 0.015
	defaultSilenceRMS = 0.008
	// defaultSpeechFrames is how many consecutive loud frames trigger speech
	// (~60 ms at 20 ms frames).
	defaultSpeechFrames = 3
	// defaultSilenceFrames is how many consecutive quiet frames end speech
	// (~100 ms). Longer end-of-turn debounce belongs to the segmenter, not
	// the detector.
	defaultSilenceFrames = 5
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithRMSThresholds overrides the raw RMS enter/exit levels. Both are
// normalized to [0, 1] where 1 is a full-scale int16 signal.
func WithRMSThresholds(speech, silence float64) Option {
	return func(e *Engine) {
		e.speechRMS = speech
		e.silenceRMS = silence
	}
}

// WithHysteresisFrames overrides the consecutive-frame counts required to
// enter and leave speech.
func WithHysteresisFrames(speech, silence int) Option {
	return func(e *Engine) {
		e.speechFrames = speech
		e.silenceFrames = silence
	}
}

// Engine implements vad.Engine using RMS energy levels.
type Engine struct {
	speechRMS     float64
	silenceRMS    float64
	speechFrames  int
	silenceFrames int
}

var _ vad.Engine = (*Engine)(nil)

// New creates an energy Engine with defaults suitable for 16 kHz 20 ms
// frames.
func New(opts ...Option) *Engine {
	e := &Engine{
		speechRMS:     defaultSpeechRMS,
		silenceRMS:    defaultSilenceRMS,
		speechFrames:  defaultSpeechFrames,
		silenceFrames: defaultSilenceFrames,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession creates a detection session for one stream.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: invalid frame size %dms", cfg.FrameSizeMs)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, errors.New("energy: silence threshold must not exceed speech threshold")
	}
	return &session{
		engine:     e,
		frameBytes: cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2,
	}, nil
}

// session holds per-stream hysteresis state. Not safe for concurrent use.
type session struct {
	engine     *Engine
	frameBytes int

	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame classifies one frame and reports the resulting transition.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	level := rms(frame)
	wasInSpeech := s.inSpeech

	if s.inSpeech {
		if level < s.engine.silenceRMS {
			s.silenceCount++
			s.speechCount = 0
			if s.silenceCount >= s.engine.silenceFrames {
				s.inSpeech = false
				s.silenceCount = 0
			}
		} else {
			s.silenceCount = 0
		}
	} else {
		if level >= s.engine.speechRMS {
			s.speechCount++
			s.silenceCount = 0
			if s.speechCount >= s.engine.speechFrames {
				s.inSpeech = true
				s.speechCount = 0
			}
		} else {
			s.speechCount = 0
		}
	}

	ev := vad.VADEvent{Probability: s.probability(level)}
	switch {
	case s.inSpeech && !wasInSpeech:
		ev.Type = vad.VADSpeechStart
	case s.inSpeech:
		ev.Type = vad.VADSpeechContinue
	case wasInSpeech:
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

// probability maps an RMS level onto a pseudo-probability so that callers
// tuned to model-style scores get sensible values: the speech threshold maps
// to 0.5 and twice the threshold saturates at 1.0.
func (s *session) probability(level float64) float64 {
	p := level / (2 * s.engine.speechRMS)
	if p > 1 {
		p = 1
	}
	return p
}

// Reset clears hysteresis state.
func (s *session) Reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close marks the session closed.
func (s *session) Close() error {
	s.closed = true
	return nil
}

// rms computes the root-mean-square level of little-endian 16-bit PCM,
// normalized to [0, 1].
func rms(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(samples)) / 32768
}
