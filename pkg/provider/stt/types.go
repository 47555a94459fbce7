package stt

// Transcript is a recognition result for a speech segment.
type Transcript struct {
	// Text is the recognized text. May be empty for a segment that contained
	// no usable speech.
	Text string

	// IsFinal is true for the segment's single authoritative result and
	// false for interim partials.
	IsFinal bool

	// Confidence is the recognizer's overall confidence (0.0–1.0), or 0 when
	// the backend does not report one.
	Confidence float64
}
