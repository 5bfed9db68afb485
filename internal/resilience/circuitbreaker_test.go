package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FusionCrew/voicepipe/internal/resilience"
)

var errBackend = errors.New("backend exploded")

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "test",
		MaxFailures: 3,
	})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("attempt %d: err = %v, want errBackend", i, err)
		}
	}
	if got := cb.State(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn was called while the breaker was open")
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2})

	cb.Execute(func() error { return errBackend })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBackend })

	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("state = %v, want closed after interleaved success", got)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})

	cb.Execute(func() error { return errBackend })
	if got := cb.State(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := cb.State(); got != resilience.StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", got)
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", got)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})

	cb.Execute(func() error { return errBackend })
	time.Sleep(20 * time.Millisecond)

	cb.Execute(func() error { return errBackend })
	if got := cb.State(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open after failed probe", got)
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2})

	// Cancelled calls are neither failures nor successes: many abandoned
	// requests in a row must not trip the breaker.
	for i := 0; i < 10; i++ {
		err := cb.Execute(func() error { return context.Canceled })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	}
	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("state = %v, want closed after cancellations only", got)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1})
	cb.Execute(func() error { return errBackend })
	cb.Reset()
	if got := cb.State(); got != resilience.StateClosed {
		t.Fatalf("state = %v, want closed after Reset", got)
	}
}
