// Package tts defines the Provider interface for speech synthesis backends.
//
// Synthesis is sentence-oriented: the reply planner cuts the model's token
// stream into sentences, and the provider synthesizes each one as an
// independent unit. Because implementations may run several synthesis
// requests in parallel to hide latency, output chunks can complete out of
// order; each Chunk carries the Seq of the sentence it belongs to so the
// playout stage can restore strict utterance order.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Sentence is one unit of text to synthesize.
type Sentence struct {
	// Seq is the sentence's position within the utterance, starting at 0.
	Seq uint64

	// Text is the sentence text.
	Text string
}

// Chunk is the synthesized audio for one sentence.
type Chunk struct {
	// Seq mirrors the Seq of the sentence this chunk was synthesized from.
	Seq uint64

	// PCM is raw little-endian 16-bit mono PCM at the provider's configured
	// output rate. Nil when Err is set.
	PCM []byte

	// Err is non-nil when synthesis of this sentence failed. The rest of the
	// utterance is unaffected; callers skip the chunk and keep playing.
	Err error
}

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// SynthesizeStream consumes sentences and returns a channel of synthesized
	// chunks, exactly one per input sentence, possibly out of order. The
	// channel is closed once every sentence received before the input channel
	// closed has produced its chunk, or when ctx is cancelled. Callers must
	// drain the channel to avoid goroutine leaks.
	//
	// Returns a non-nil error only if the stream cannot start (e.g., invalid
	// voice profile). Per-sentence failures surface as Chunk.Err.
	SynthesizeStream(ctx context.Context, sentences <-chan Sentence, voice VoiceProfile) (<-chan Chunk, error)
}
