// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine classifies fixed-duration PCM frames as speech or silence and
// surfaces the result as a stateful per-stream session. Sessions keep their
// own smoothing state (hysteresis counters, energy history) so that multiple
// streams can be processed independently.
//
// Detection is synchronous: ProcessFrame returns immediately, which is what
// the frame loop needs — classification gates segmentation and must never add
// latency to audio ingestion.
//
// Engines must be safe for concurrent use across sessions. A single
// SessionHandle is not safe for concurrent use unless its implementation says
// otherwise.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the expected duration of each frame in milliseconds.
	// ProcessFrame returns an error for frames of any other size.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame counts as
	// speech. Range [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts as
	// silence. Must be <= SpeechThreshold; the gap between the two is the
	// hysteresis band that keeps borderline audio from flickering. Typical:
	// 0.35.
	SilenceThreshold float64
}

// SessionHandle is an active VAD session for one audio stream.
type SessionHandle interface {
	// ProcessFrame classifies a single frame of raw little-endian 16-bit PCM
	// and returns the detection result. Must not block; it runs inline in the
	// frame loop.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	// Call it when the stream restarts so stale hysteresis counters do not
	// bleed into the next segment.
	Reset()

	// Close releases session resources. Safe to call more than once.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
type Engine interface {
	// NewSession creates a session ready to accept frames. Returns an error
	// for invalid configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
