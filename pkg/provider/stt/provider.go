// Package stt defines the Provider interface for speech recognition backends.
//
// Recognition is scoped to speech segments: the segmenter decides where an
// utterance begins and ends, and the coordinator opens one session per
// segment. A session accepts the segment's PCM audio incrementally, may emit
// low-latency partial transcripts along the way, and emits exactly one final
// transcript after CloseSend marks the end of the segment's audio. An empty
// final (whitespace-only or zero-length text) means the segment contained no
// usable speech.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open at once while an earlier segment's recognition is still in flight.
package stt

import "context"

// SegmentConfig describes the audio format and recognition hints for a
// segment session.
type SegmentConfig struct {
	// SampleRate is the audio sample rate in Hz. Typically 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, which is what most
	// recognizers require; implementations may downmix internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// Empty lets the provider use its configured default.
	Language string
}

// SessionHandle is an open recognition session for a single speech segment.
//
// Callers must call Close when done with the session, even after CloseSend,
// or provider goroutines and connections may leak. All methods are safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw little-endian 16-bit PCM matching the
	// SegmentConfig format. Returns an error after CloseSend or Close.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim transcripts, useful for
	// UI activity but never authoritative. Providers without true streaming
	// recognition may emit none. The channel closes when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel that delivers the segment's single
	// authoritative transcript, then closes. If recognition fails the channel
	// closes without a value; callers treat that as a recognition error.
	Finals() <-chan Transcript

	// CloseSend marks the end of the segment's audio and triggers final
	// recognition. Audio sent after CloseSend is rejected. Safe to call more
	// than once.
	CloseSend() error

	// Close aborts the session and releases resources. A final still in
	// flight is abandoned. Safe to call more than once.
	Close() error
}

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// StartSegment opens a recognition session for one speech segment. The
	// returned handle is ready to accept audio immediately. The caller owns
	// the handle and must Close it.
	StartSegment(ctx context.Context, cfg SegmentConfig) (SessionHandle, error)
}
