package turn

import "github.com/tbjorklund/parlo/pkg/provider/tts"

// orderedBuffer restores strict sentence order over the synthesizer's
// completion-ordered chunk stream. The synthesizer runs several sentences in
// parallel, so chunk n+1 can finish before chunk n; playback must still be
// strictly sequential or the utterance comes out scrambled.
//
// Failed chunks (Err set) pass through in order like any other so the caller
// can skip them and keep the sequence advancing.
//
// Not safe for concurrent use; the playout loop owns it.
type orderedBuffer struct {
	next    uint64
	pending map[uint64]tts.Chunk
}

func newOrderedBuffer() *orderedBuffer {
	return &orderedBuffer{pending: make(map[uint64]tts.Chunk)}
}

// release accepts one chunk and returns every chunk now deliverable in strict
// sequence order. The result is empty while the next expected chunk is still
// outstanding. Chunks with a stale sequence number are dropped.
func (b *orderedBuffer) release(c tts.Chunk) []tts.Chunk {
	if c.Seq < b.next {
		return nil
	}
	b.pending[c.Seq] = c

	var out []tts.Chunk
	for {
		next, ok := b.pending[b.next]
		if !ok {
			return out
		}
		delete(b.pending, b.next)
		b.next++
		out = append(out, next)
	}
}

// outstanding returns how many chunks are buffered awaiting earlier sequence
// numbers.
func (b *orderedBuffer) outstanding() int {
	return len(b.pending)
}
