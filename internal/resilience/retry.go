package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig holds tuning knobs for [Retry]. Zero-value fields are replaced
// with defaults.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3.
	Attempts int

	// InitialBackoff is the delay before the second attempt; it doubles
	// after every failure. Default: 250ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling. Default: 5s.
	MaxBackoff time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

// Retry runs fn up to cfg.Attempts times with exponential backoff between
// failures. It returns nil on the first success and the last error once the
// attempt budget is exhausted.
//
// Context cancellation stops retrying immediately and is returned as-is: an
// abandoned request must not burn backoff time or attempts, and the caller
// can distinguish ctx.Err() from a backend failure. A fn error of
// context.Canceled is treated the same way.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()

	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err

		if attempt == cfg.Attempts {
			break
		}

		slog.Debug("retrying after failure",
			"name", name,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("resilience: %s failed after %d attempts: %w", name, cfg.Attempts, lastErr)
}
