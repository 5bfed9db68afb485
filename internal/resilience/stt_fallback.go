package resilience

import (
	"context"
	"sync"

	"github.com/FusionCrew/voicepipe/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with bounded retry and automatic
// failover across multiple transcription backends. Each backend has its own
// circuit breaker; each retry attempt walks the whole chain.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]

	mu    sync.RWMutex
	retry RetryConfig
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig, retry RetryConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		retry: retry,
	}
}

// AddFallback registers an additional transcription provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// SetRetry replaces the retry configuration. Safe to call while Transcribe
// is in flight; in-flight calls keep the config they started with.
func (f *STTFallback) SetRetry(retry RetryConfig) {
	f.mu.Lock()
	f.retry = retry
	f.mu.Unlock()
}

// Transcribe submits the utterance to the first healthy provider, retrying
// the whole chain with backoff when every entry fails. Cancellation aborts
// immediately without counting against any backend.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	f.mu.RLock()
	retry := f.retry
	f.mu.RUnlock()

	var res stt.Result
	err := Retry(ctx, "transcribe", retry, func(ctx context.Context) error {
		var innerErr error
		res, innerErr = ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Result, error) {
			return p.Transcribe(ctx, req)
		})
		return innerErr
	})
	if err != nil {
		return stt.Result{}, err
	}
	return res, nil
}
