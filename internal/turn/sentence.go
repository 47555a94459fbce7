package turn

import (
	"context"
	"strings"

	"github.com/tbjorklund/parlo/pkg/provider/llm"
	"github.com/tbjorklund/parlo/pkg/provider/tts"
)

// forwardSentences reads token chunks from chunks, accumulates them into
// complete sentences, and forwards each sentence to out with an increasing
// sequence number starting at seq. Any text remaining when the stream ends is
// flushed as a final fragment. onFirst, if non-nil, is invoked once when the
// first sentence is forwarded.
//
// Returns the full accumulated reply text, the next unused sequence number,
// and whether the stream ended with an error finish. On context cancellation
// the text accumulated so far is returned, which is what lets an interrupted
// turn archive exactly what was generated before the cut.
func forwardSentences(ctx context.Context, chunks <-chan llm.Chunk, out chan<- tts.Sentence, seq uint64, onFirst func()) (string, uint64, bool) {
	var full strings.Builder
	var pending string

	send := func(text string) bool {
		text = strings.TrimSpace(text)
		if text == "" {
			return true
		}
		if onFirst != nil {
			onFirst()
			onFirst = nil
		}
		select {
		case out <- tts.Sentence{Seq: seq, Text: text}:
			seq++
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return full.String(), seq, false
		case chunk, ok := <-chunks:
			if !ok {
				// Stream closed: flush whatever is left.
				send(pending)
				return full.String(), seq, false
			}
			if chunk.FinishReason == "error" {
				return full.String(), seq, true
			}
			full.WriteString(chunk.Text)
			pending += chunk.Text

			// Flush complete sentences eagerly so synthesis starts before the
			// model finishes generating.
			for {
				idx := sentenceBoundary(pending)
				if idx < 0 {
					break
				}
				if !send(pending[:idx+1]) {
					return full.String(), seq, false
				}
				pending = strings.TrimLeft(pending[idx+1:], " \t\n\r")
			}

			if chunk.FinishReason != "" {
				send(pending)
				return full.String(), seq, false
			}
		}
	}
}

// splitSentences cuts text into its complete sentences, with any trailing
// fragment as the last element. Used for fixed lines that bypass the planner.
func splitSentences(text string) []string {
	var out []string
	rest := strings.TrimSpace(text)
	for {
		idx := sentenceBoundary(rest)
		if idx < 0 {
			break
		}
		out = append(out, strings.TrimSpace(rest[:idx+1]))
		rest = strings.TrimLeft(rest[idx+1:], " \t\n\r")
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

// sentenceBoundary returns the index of the first '.', '!', or '?' that is
// immediately followed by whitespace, or -1 when s holds no complete
// sentence. Requiring the trailing whitespace keeps abbreviations like "Dr."
// and decimals like "3.14" from splitting mid-stream; text that ends without
// one is flushed as a fragment when the stream closes.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
