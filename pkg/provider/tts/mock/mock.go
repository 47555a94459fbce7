// Package mock provides a scripted tts.Provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/tbjorklund/parlo/pkg/provider/tts"
)

// Provider is a scripted tts.Provider. Each sentence synthesizes into PCM
// derived from its text (or a fixed PCMPerSentence payload), letting tests
// assert playback content and order. Specific sentence sequence numbers can
// be scripted to fail or to complete out of order.
type Provider struct {
	// PCMPerSentence, when set, is emitted for every sentence instead of the
	// text-derived payload.
	PCMPerSentence []byte

	// FailSeqs lists sentence sequence numbers whose synthesis fails.
	FailSeqs []uint64

	// ReverseOrder, when true, collects all sentences first and emits their
	// chunks in reverse sequence order. Used to exercise reordering logic.
	ReverseOrder bool

	// StartErr, when set, is returned by SynthesizeStream.
	StartErr error

	mu        sync.Mutex
	sentences []tts.Sentence
}

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream replays scripted synthesis for each sentence.
func (p *Provider) SynthesizeStream(ctx context.Context, sentences <-chan tts.Sentence, voice tts.VoiceProfile) (<-chan tts.Chunk, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}

	chunks := make(chan tts.Chunk, 16)
	go func() {
		defer close(chunks)

		var pending []tts.Sentence
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-sentences:
				if !ok {
					if p.ReverseOrder {
						for i := len(pending) - 1; i >= 0; i-- {
							if !p.emit(ctx, chunks, pending[i]) {
								return
							}
						}
					}
					return
				}
				p.record(s)
				if p.ReverseOrder {
					pending = append(pending, s)
					continue
				}
				if !p.emit(ctx, chunks, s) {
					return
				}
			}
		}
	}()
	return chunks, nil
}

// Sentences returns every sentence received, in arrival order.
func (p *Provider) Sentences() []tts.Sentence {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Sentence, len(p.sentences))
	copy(out, p.sentences)
	return out
}

func (p *Provider) record(s tts.Sentence) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sentences = append(p.sentences, s)
}

func (p *Provider) emit(ctx context.Context, chunks chan<- tts.Chunk, s tts.Sentence) bool {
	out := tts.Chunk{Seq: s.Seq}
	if p.shouldFail(s.Seq) {
		out.Err = errors.New("mock: scripted synthesis failure")
	} else if p.PCMPerSentence != nil {
		out.PCM = p.PCMPerSentence
	} else {
		out.PCM = []byte(s.Text)
	}
	select {
	case chunks <- out:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provider) shouldFail(seq uint64) bool {
	for _, f := range p.FailSeqs {
		if f == seq {
			return true
		}
	}
	return false
}
