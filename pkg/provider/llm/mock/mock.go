// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tbjorklund/parlo/pkg/provider/llm"
)

// Provider is a scripted llm.Provider. Each StreamCompletion or Complete call
// consumes the next entry from Script; when the script runs out the last
// entry repeats. Every request is recorded for assertions.
type Provider struct {
	// Script holds one entry per expected completion, in order.
	Script []Reply

	// StartErr, when set, is returned by StreamCompletion and Complete
	// before consuming the script.
	StartErr error

	mu       sync.Mutex
	next     int
	requests []llm.CompletionRequest
}

// Reply scripts one completion.
type Reply struct {
	// Chunks is the token stream, emitted one chunk per element.
	Chunks []string

	// StreamErr, when true, ends the stream with a FinishReason "error"
	// chunk after Chunks.
	StreamErr bool

	// Block, when set, makes the stream wait on the channel before emitting
	// anything. Close it to release the stream; tests use this to hold a
	// completion in flight while a barge-in arrives.
	Block chan struct{}
}

var _ llm.Provider = (*Provider)(nil)

// StreamCompletion replays the next scripted reply as a chunk stream.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	reply, err := p.take(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		if reply.Block != nil {
			select {
			case <-reply.Block:
			case <-ctx.Done():
				return
			}
		}
		for _, text := range reply.Chunks {
			select {
			case ch <- llm.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		if reply.StreamErr {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Text: "scripted stream failure"}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case ch <- llm.Chunk{FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// Complete replays the next scripted reply as a single response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	reply, err := p.take(req)
	if err != nil {
		return nil, err
	}
	if reply.Block != nil {
		select {
		case <-reply.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reply.StreamErr {
		return nil, errors.New("mock: scripted completion failure")
	}
	return &llm.CompletionResponse{Content: strings.Join(reply.Chunks, "")}, nil
}

// CountTokens approximates one token per four characters.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
	}
	return total, nil
}

// Requests returns all recorded completion requests in call order.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Provider) take(req llm.CompletionRequest) (Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.StartErr != nil {
		return Reply{}, p.StartErr
	}
	if len(p.Script) == 0 {
		return Reply{}, nil
	}
	reply := p.Script[min(p.next, len(p.Script)-1)]
	p.next++
	return reply, nil
}
