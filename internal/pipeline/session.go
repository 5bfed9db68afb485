package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/FusionCrew/voicepipe/internal/dispatch"
	"github.com/FusionCrew/voicepipe/internal/observe"
	"github.com/FusionCrew/voicepipe/internal/segment"
	"github.com/FusionCrew/voicepipe/pkg/audio"
	"github.com/FusionCrew/voicepipe/pkg/provider/stt"
)

// captureSession is one live microphone session. The device callback drives
// resampling and segmentation synchronously; finalized utterances are handed
// to a processing goroutine.
type captureSession struct {
	ctrl       *Controller
	generation uint64

	// ctx is the session-scoped context. cancel aborts all in-flight
	// utterance processing on teardown.
	ctx    context.Context
	cancel context.CancelFunc

	device      audio.CaptureDevice
	captureRate int

	// procMu guards the frame-processing chain. The device callback holds it
	// while feeding; Apply holds it while swapping in reloaded settings.
	procMu    sync.Mutex
	resampler *audio.Resampler
	seg       *segment.Segmenter
	gate      segment.QualityGate
	clock     time.Duration

	// inflightMu guards the cancel func of the single in-flight utterance.
	// A newly finalized utterance supersedes the previous one.
	inflightMu     sync.Mutex
	inflightCancel context.CancelFunc
}

// onData is the device callback. It must stay cheap: no I/O, no blocking.
func (s *captureSession) onData(data []byte, _ uint32) {
	s.procMu.Lock()
	frame := audio.FrameFromPCM16(data, s.captureRate, s.clock)
	s.clock += frame.Duration()
	frame = s.resampler.Resample(frame)
	seg, outcome := s.seg.Feed(frame)
	gate := s.gate
	s.procMu.Unlock()

	switch outcome {
	case segment.OutcomeTooShort:
		s.ctrl.metrics.RecordSegment(s.ctx, "too_short")
	case segment.OutcomeFinalized:
		s.handleSegment(seg, gate)
	}
}

// handleSegment applies the quality gate and spawns utterance processing,
// cancelling the previous in-flight utterance first.
func (s *captureSession) handleSegment(seg segment.Segment, gate segment.QualityGate) {
	if !gate.Admit(seg.Stats) {
		s.ctrl.metrics.RecordSegment(s.ctx, "rejected")
		slog.Debug("segment rejected by quality gate",
			"duration", seg.Stats.Duration,
			"voiced_fraction", seg.Stats.VoicedFraction,
		)
		return
	}

	s.ctrl.metrics.RecordSegment(s.ctx, "finalized")
	s.ctrl.metrics.SegmentDuration.Record(s.ctx, seg.Stats.Duration.Seconds())

	s.inflightMu.Lock()
	if s.inflightCancel != nil {
		s.inflightCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.inflightCancel = cancel
	s.inflightMu.Unlock()

	go s.process(ctx, cancel, seg)
}

// process transcribes one utterance and dispatches its translations. All
// failure paths caused by cancellation are silent: a superseded or torn-down
// utterance must not reach the consumer.
func (s *captureSession) process(ctx context.Context, cancel context.CancelFunc, seg segment.Segment) {
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "pipeline.utterance",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	targets, sourceLang, dispatcher := s.ctrl.snapshot()

	wav := audio.EncodeWAV(seg.Samples, seg.Rate)

	start := time.Now()
	res, err := s.ctrl.transcriber.Transcribe(ctx, stt.Request{
		Audio:    wav,
		Language: sourceLang,
	})
	s.ctrl.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		observe.Logger(ctx).Warn("transcription failed",
			"duration", seg.Stats.Duration, "error", err)
		s.deliver(func(consumer Consumer) {
			consumer.OnError(fmt.Errorf("pipeline: transcription: %w", err))
		})
		return
	}

	// Whisper returns empty text for breath noise and background sounds that
	// passed the gates. Not an error; just nothing to show.
	if res.Text == "" {
		s.ctrl.metrics.RecordSegment(ctx, "silent")
		return
	}

	translations, err := dispatcher.Dispatch(ctx, res.Text, sourceLang, targets)
	if err != nil {
		return // cancelled mid-dispatch
	}
	s.recordTranslationOutcomes(ctx, targets, translations)

	s.deliver(func(consumer Consumer) {
		consumer.OnResult(Result{
			Original:     res.Text,
			SourceLang:   sourceLang,
			Translations: translations,
		})
	})
}

// recordTranslationOutcomes counts delivered targets as ok and omitted ones
// as errors.
func (s *captureSession) recordTranslationOutcomes(ctx context.Context, targets []dispatch.Target, translations []dispatch.Translation) {
	delivered := make(map[string]bool, len(translations))
	for _, tr := range translations {
		delivered[tr.Lang] = true
		s.ctrl.metrics.RecordTranslation(ctx, tr.Lang, "ok")
	}
	for _, t := range targets {
		if !delivered[t.Lang] {
			s.ctrl.metrics.RecordTranslation(ctx, t.Lang, "error")
		}
	}
}

// deliver invokes fn on the consumer unless this session has been superseded
// or torn down.
func (s *captureSession) deliver(fn func(Consumer)) {
	if !s.ctrl.current(s.generation) {
		return
	}
	fn(s.ctrl.consumer)
}

// reconfigure swaps in hot-reloaded processing settings. Any utterance being
// accumulated is dropped; segmentation restarts from idle.
func (s *captureSession) reconfigure(r *audio.Resampler, segCfg segment.Config, gate segment.QualityGate) {
	s.procMu.Lock()
	s.resampler = r
	s.seg = segment.New(segCfg)
	s.gate = gate
	s.procMu.Unlock()
}

// stop halts the device, then cancels in-flight processing. Device teardown
// comes first so no new frames arrive while the session unwinds.
func (s *captureSession) stop() {
	if err := s.device.Stop(); err != nil {
		slog.Warn("capture device stop error", "error", err)
	}
	if err := s.device.Close(); err != nil {
		slog.Warn("capture device close error", "error", err)
	}
	s.cancel()

	s.procMu.Lock()
	s.seg.Reset()
	s.procMu.Unlock()
}
