// Package mock provides test doubles for the translate package interfaces.
//
// Use Provider to script translation results per target language and
// inspect the requests the caller issued.
//
// Example:
//
//	p := &mock.Provider{Results: map[string]string{"de": "hallo", "uk": "привіт"}}
//	res, _ := p.Translate(ctx, translate.Request{Text: "hello", TargetLang: "de"})
package mock

import (
	"context"
	"sync"

	"github.com/FusionCrew/voicepipe/pkg/provider/translate"
)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	// Ctx is the context passed to Translate.
	Ctx context.Context
	// Req is the request passed to Translate.
	Req translate.Request
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Results maps target language to the text returned for it. A missing
	// key returns the request text unchanged, which keeps simple tests
	// short.
	Results map[string]string

	// Err, if non-nil, is returned as the error from every Translate call.
	Err error

	// ErrFor, if non-nil, maps target languages to errors. It takes
	// precedence over Err for the listed languages only, letting a test
	// fail one target while the others succeed.
	ErrFor map[string]error

	// Fn, if non-nil, is invoked instead of the declarative fields.
	Fn func(ctx context.Context, req translate.Request) (translate.Result, error)

	// Calls records every call to Translate in order.
	Calls []TranslateCall
}

// Translate records the call, then delegates to Fn or the declarative
// Results/Err fields.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranslateCall{Ctx: ctx, Req: req})
	fn := p.Fn
	var (
		err  error
		text string
	)
	if e, ok := p.ErrFor[req.TargetLang]; ok {
		err = e
	} else {
		err = p.Err
	}
	if t, ok := p.Results[req.TargetLang]; ok {
		text = t
	} else {
		text = req.Text
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return translate.Result{}, err
	}
	return translate.Result{Text: text}, nil
}

// CallCount returns the number of Translate calls. Thread-safe.
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

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)
