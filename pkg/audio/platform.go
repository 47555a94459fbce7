// Package audio defines the interfaces and types for audio transport
// connectivity within Parlo.
//
// The three primary abstractions are:
//
//   - [Platform] — opens a duplex audio channel and returns a [Source] and [Sink].
//   - [Source] — delivers fixed-duration PCM frames from the user's microphone.
//   - [Sink] — plays synthesized PCM and supports discarding buffered audio on
//     interruption.
//
// Implementations are provided by transport-specific adapter packages
// (audio/room for the WebSocket audio room, audio/local for the console mode).
// The interfaces are intentionally narrow to keep the turn coordinator
// decoupled from transport details.
//
// This package lives under pkg/ because external code (third-party transport
// adapters) is expected to implement [Platform], [Source], and [Sink].
package audio

import "context"

// Source delivers the continuous inbound audio stream as fixed-duration
// frames.
//
// The Frames channel is closed when the transport ends — either through a
// clean [Source.Close] or an unrecoverable transport failure. Frame delivery
// must never block on downstream consumers; it is the consumer's job to drain
// promptly or buffer through a [FrameQueue].
type Source interface {
	// Frames returns the read-only channel of inbound PCM frames, in strict
	// capture order with monotonically increasing Seq. The channel is closed
	// when the stream ends.
	Frames() <-chan Frame

	// Close stops frame delivery and releases transport resources. Safe to
	// call more than once; subsequent calls return nil.
	Close() error
}

// Sink consumes synthesized PCM for playback.
//
// Implementations buffer internally; Write returns once the chunk is accepted
// for playback, not once it has been played. All methods must be safe for
// concurrent use: the coordinator writes from the playout goroutine and calls
// Flush from the event loop on barge-in.
type Sink interface {
	// Write queues a chunk of raw little-endian 16-bit PCM for playback.
	// Chunks are played strictly in the order written. Write respects ctx
	// cancellation while the sink's buffer is full.
	Write(ctx context.Context, pcm []byte) error

	// Flush discards all buffered-but-unplayed audio immediately. Used on
	// barge-in so that an interrupted utterance stops at once instead of
	// draining its queue. Audio written after Flush plays normally.
	Flush()

	// Close drains or discards pending audio and releases transport
	// resources. Safe to call more than once; subsequent calls return nil.
	Close() error
}

// Platform is the entry point for a duplex audio transport. Implementations
// wrap transport-specific plumbing (WebSocket audio room, local console pipes)
// and expose the uniform [Source]/[Sink] pair the pipeline consumes.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Open establishes the duplex channel and returns the live Source and
	// Sink. The supplied ctx governs the connection attempt only; once open,
	// the pair remains alive until closed explicitly.
	Open(ctx context.Context) (Source, Sink, error)
}
