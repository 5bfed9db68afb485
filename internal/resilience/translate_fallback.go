package resilience

import (
	"context"
	"sync"

	"github.com/FusionCrew/voicepipe/pkg/provider/translate"
)

// TranslateFallback implements [translate.Provider] with bounded retry and
// automatic failover across multiple translation backends. Each backend has
// its own circuit breaker; each retry attempt walks the whole chain.
type TranslateFallback struct {
	group *FallbackGroup[translate.Provider]

	mu    sync.RWMutex
	retry RetryConfig
}

// Compile-time interface assertion.
var _ translate.Provider = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Provider, primaryName string, cfg FallbackConfig, retry RetryConfig) *TranslateFallback {
	return &TranslateFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		retry: retry,
	}
}

// AddFallback registers an additional translation provider as a fallback.
func (f *TranslateFallback) AddFallback(name string, provider translate.Provider) {
	f.group.AddFallback(name, provider)
}

// SetRetry replaces the retry configuration. Safe to call while Translate
// is in flight; in-flight calls keep the config they started with.
func (f *TranslateFallback) SetRetry(retry RetryConfig) {
	f.mu.Lock()
	f.retry = retry
	f.mu.Unlock()
}

// Translate submits the request to the first healthy provider, retrying the
// whole chain with backoff when every entry fails. Cancellation aborts
// immediately without counting against any backend.
func (f *TranslateFallback) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	f.mu.RLock()
	retry := f.retry
	f.mu.RUnlock()

	var res translate.Result
	err := Retry(ctx, "translate", retry, func(ctx context.Context) error {
		var innerErr error
		res, innerErr = ExecuteWithResult(ctx, f.group, func(p translate.Provider) (translate.Result, error) {
			return p.Translate(ctx, req)
		})
		return innerErr
	})
	if err != nil {
		return translate.Result{}, err
	}
	return res, nil
}
