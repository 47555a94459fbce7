package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func passing() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(BreakerConfig{Name: "test", TripAfter: 3})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d returned %v, want the call error", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after trip threshold, want open", cb.State())
	}
	if err := cb.Execute(passing); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker returned %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(BreakerConfig{TripAfter: 3})

	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	_ = cb.Execute(passing)
	_ = cb.Execute(failing)
	_ = cb.Execute(failing)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (failures not consecutive)", cb.State())
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(BreakerConfig{
		TripAfter:   1,
		Cooldown:    10 * time.Millisecond,
		ProbeBudget: 2,
	})

	_ = cb.Execute(failing)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v after cooldown, want half-open", cb.State())
	}
	for i := 0; i < 2; i++ {
		if err := cb.Execute(passing); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after successful probes, want closed", cb.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(BreakerConfig{
		TripAfter: 1,
		Cooldown:  10 * time.Millisecond,
	})

	_ = cb.Execute(failing)
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe returned %v, want the call error", err)
	}
	if err := cb.Execute(passing); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("breaker let a call through right after a failed probe: %v", err)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(BreakerConfig{TripAfter: 1})
	_ = cb.Execute(failing)
	cb.Reset()

	if cb.State() != StateClosed {
		t.Fatalf("state = %v after reset, want closed", cb.State())
	}
	if err := cb.Execute(passing); err != nil {
		t.Fatalf("call after reset: %v", err)
	}
}
