package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbjorklund/parlo/pkg/provider/llm"
	llmmock "github.com/tbjorklund/parlo/pkg/provider/llm/mock"
)

func TestFallbackGroupPrefersPrimary(t *testing.T) {
	t.Parallel()

	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("secondary", "secondary")

	var used string
	err := g.Execute(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "primary" {
		t.Fatalf("used %q, want the primary", used)
	}
}

func TestFallbackGroupFailsOver(t *testing.T) {
	t.Parallel()

	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("secondary", "secondary")

	got, err := ExecuteWithResult(g, func(v string) (string, error) {
		if v == "primary" {
			return "", errors.New("connection refused")
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("got %q, want the fallback's result", got)
	}
}

func TestFallbackGroupAllFailed(t *testing.T) {
	t.Parallel()

	g := NewFallbackGroup("only", "only", FallbackConfig{})
	err := g.Execute(func(string) error { return errors.New("down") })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("got %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	g := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 1, Cooldown: time.Hour},
	})
	g.AddFallback("secondary", "secondary")

	var primaryCalls int
	call := func(v string) error {
		if v == "primary" {
			primaryCalls++
			return errors.New("down")
		}
		return nil
	}

	// First round trips the primary's breaker; second round must skip it
	// without a call.
	if err := g.Execute(call); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := g.Execute(call); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if primaryCalls != 1 {
		t.Fatalf("primary called %d times, want 1 (breaker open)", primaryCalls)
	}
}

func TestLLMFallbackStreamsFromHealthyBackend(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{StartErr: errors.New("connection refused")}
	secondary := &llmmock.Provider{Script: []llmmock.Reply{{Chunks: []string{"hi"}}}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	ch, err := f.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "hi" {
		t.Fatalf("streamed %q, want the fallback's reply", text)
	}
	if n := len(secondary.Requests()); n != 1 {
		t.Fatalf("fallback received %d requests, want 1", n)
	}
}
