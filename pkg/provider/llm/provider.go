// Package llm defines the Provider interface for language model backends.
//
// A provider wraps a local model server (Ollama, llama.cpp, an
// OpenAI-compatible endpoint) and exposes a uniform interface for streaming
// reply generation. The reply planner consumes token streams; the
// non-streaming Complete exists for one-shot uses like the initial greeting.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion are closed by the implementation when the stream ends or
// the supplied context is cancelled.
package llm

import "context"

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history, oldest first. The last
	// message is typically the user's and drives the reply.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the
	// provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the history.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. May be empty on a chunk that
	// only carries a FinishReason.
	Text string

	// FinishReason is set on the final chunk: "stop" for a natural end,
	// "length" when MaxTokens was reached, "error" when the stream failed
	// mid-generation (Text then holds the error message), "" otherwise.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string

	// Usage holds token accounting when the backend reports it.
	Usage Usage
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the abstraction over any language model backend.
//
// Each method must propagate context cancellation promptly: a cancelled ctx
// ends the stream (or returns) as quickly as possible, which is what makes
// barge-in cut generation short.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// of chunks. The channel is closed when generation finishes or ctx is
	// cancelled; callers must drain it to avoid goroutine leaks.
	//
	// Errors after the stream opens surface as a Chunk with FinishReason
	// "error". The initial error return is non-nil only when the stream
	// cannot start at all. The returned channel is never nil when error is
	// nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full reply. Convenience wrapper
	// for callers that do not need incremental output.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many context-window tokens the messages
	// consume. Used to trim conversation history before a request. The
	// result need not be exact but should not undercount.
	CountTokens(messages []Message) (int, error)
}
