package audio

import "time"

// Frame represents a single fixed-duration block of PCM audio flowing through
// the pipeline. Frames are the atomic unit of audio transport — captured from
// the input channel, classified by VAD, accumulated into speech segments, and
// handed to transcription. A Frame is never mutated after creation.
type Frame struct {
	// Data is raw little-endian 16-bit PCM. Sample rate and channel count are
	// determined by the pipeline config.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for the pipeline rate, 48000 on the wire).
	SampleRate int

	// Channels: 1 for mono (pipeline rate), 2 for stereo (some transports).
	Channels int

	// Seq is the monotonic sequence number assigned by the frame source.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's PCM data, derived from its
// byte length, sample rate, and channel count. Returns zero for malformed
// frames.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
