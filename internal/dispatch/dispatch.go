// Package dispatch fans one transcribed utterance out across all configured
// target languages in parallel.
//
// The [Dispatcher] runs at most a configured number of translation requests
// concurrently and always returns results in the caller's target order,
// regardless of which request finished first. A failed target is logged and
// omitted; one unreachable language must not withhold the others.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FusionCrew/voicepipe/internal/observe"
	"github.com/FusionCrew/voicepipe/pkg/provider/translate"
)

// DefaultWorkers bounds concurrent translation requests when the caller
// does not say otherwise.
const DefaultWorkers = 4

// Target is one translation destination: a language and the provider that
// serves it. Different targets may share a provider or use different ones.
type Target struct {
	Lang     string
	Provider translate.Provider
}

// Translation is one successful per-language result.
type Translation struct {
	Lang string
	Text string
}

// Dispatcher fans utterances out across target languages. It is stateless
// between calls and safe for concurrent use.
type Dispatcher struct {
	workers int
	metrics *observe.Metrics
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics instance for per-target latency recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// New creates a Dispatcher running at most workers concurrent requests.
// A non-positive value means [DefaultWorkers].
func New(workers int, opts ...Option) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	d := &Dispatcher{workers: workers}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Dispatch translates text into every target language concurrently and
// returns the successful results in the same order as targets. Failed
// targets are omitted. The returned error is non-nil only when ctx was
// cancelled, in which case the partial results are discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, text, sourceLang string, targets []Target) ([]Translation, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	limit := d.workers
	if len(targets) < limit {
		limit = len(targets)
	}

	// Indexed slots restore target order after arbitrary completion order.
	slots := make([]*Translation, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, tgt := range targets {
		g.Go(func() error {
			started := time.Now()
			res, err := tgt.Provider.Translate(gctx, translate.Request{
				Text:       text,
				SourceLang: sourceLang,
				TargetLang: tgt.Lang,
			})
			d.metrics.TranslationDuration.Record(gctx, time.Since(started).Seconds())
			if err != nil {
				// Per-target failure only; the group error stays nil so the
				// remaining targets keep running.
				slog.Warn("translation target failed",
					"lang", tgt.Lang, "error", err)
				return nil
			}
			slots[i] = &Translation{Lang: tgt.Lang, Text: res.Text}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Translation, 0, len(targets))
	for _, t := range slots {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}
