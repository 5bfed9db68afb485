package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FusionCrew/voicepipe/internal/resilience"
)

// fastRetry keeps test backoffs tiny.
var fastRetry = resilience.RetryConfig{
	Attempts:       3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), "op", fastRetry, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), "op", fastRetry, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBackend
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), "op", fastRetry, func(context.Context) error {
		calls++
		return errBackend
	})
	if !errors.Is(err, errBackend) {
		t.Fatalf("err = %v, want wrapped errBackend", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := resilience.Retry(ctx, "op", fastRetry, func(context.Context) error {
		calls++
		cancel()
		return errBackend
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after cancellation)", calls)
	}
}

func TestRetryPropagatesCancelledError(t *testing.T) {
	// fn reporting context.Canceled itself must not be retried either.
	calls := 0
	err := resilience.Retry(context.Background(), "op", fastRetry, func(context.Context) error {
		calls++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := resilience.Retry(ctx, "op", fastRetry, func(context.Context) error {
		t.Error("fn called with pre-cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
