// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to script transcription results and inspect the requests the
// caller issued.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Result{Text: "hello"}}
//	res, _ := p.Transcribe(ctx, stt.Request{Audio: wav})
package mock

import (
	"context"
	"sync"

	"github.com/FusionCrew/voicepipe/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe. Audio is a copy.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call when Err is nil.
	Result stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Fn, if non-nil, is invoked instead of the Result/Err fields, allowing
	// per-call behavior such as blocking until cancellation.
	Fn func(ctx context.Context, req stt.Request) (stt.Result, error)

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call, then delegates to Fn or returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	cp := req
	cp.Audio = append([]byte(nil), req.Audio...)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: cp})
	fn := p.Fn
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
