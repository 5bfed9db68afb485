// Package pipeline wires microphone capture, utterance segmentation,
// transcription, and translation dispatch into a running session.
//
// The [Controller] owns at most one capture session at a time. Frames flow
// synchronously from the device callback through resampling and segmentation;
// each finalized utterance is processed on its own goroutine so capture never
// blocks on network I/O. A new utterance supersedes the previous one: the
// in-flight transcription is cancelled and its results are discarded
// silently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/FusionCrew/voicepipe/internal/config"
	"github.com/FusionCrew/voicepipe/internal/dispatch"
	"github.com/FusionCrew/voicepipe/internal/observe"
	"github.com/FusionCrew/voicepipe/internal/resilience"
	"github.com/FusionCrew/voicepipe/internal/segment"
	"github.com/FusionCrew/voicepipe/pkg/audio"
	"github.com/FusionCrew/voicepipe/pkg/provider/stt"
	"github.com/FusionCrew/voicepipe/pkg/provider/translate"
)

const (
	// DefaultCaptureRate is the sample rate requested from capture devices
	// when the config does not specify one.
	DefaultCaptureRate = 48000

	// DefaultPipelineRate is the internal processing rate. Whisper models
	// expect 16 kHz mono input.
	DefaultPipelineRate = 16000
)

// retrySettable is implemented by provider wrappers whose retry policy can be
// swapped at runtime (see [resilience.STTFallback.SetRetry]).
type retrySettable interface {
	SetRetry(resilience.RetryConfig)
}

// ControllerConfig holds the dependencies of a [Controller].
type ControllerConfig struct {
	// Platform provides capture devices. Required.
	Platform audio.Platform

	// Transcriber converts utterance audio to text. Required. Typically a
	// [resilience.STTFallback] wrapping the configured backend chain.
	Transcriber stt.Provider

	// Translator translates transcripts. Required when the config lists
	// target languages. Typically a [resilience.TranslateFallback].
	Translator translate.Provider

	// Consumer receives pipeline output. Required.
	Consumer Consumer

	// Config is the initial configuration. Required.
	Config *config.Config

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// LogLevel, when set, is adjusted on config reloads.
	LogLevel *slog.LevelVar
}

// Controller manages the capture session lifecycle and applies configuration
// changes. All exported methods are safe for concurrent use.
type Controller struct {
	platform    audio.Platform
	transcriber stt.Provider
	translator  translate.Provider
	consumer    Consumer
	metrics     *observe.Metrics
	logLevel    *slog.LevelVar

	mu         sync.Mutex
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	session    *captureSession

	// generation increments every time a session starts. Late callbacks from
	// a superseded session compare their generation against the current one
	// and drop themselves.
	generation uint64
}

// New creates a Controller. The pipeline is idle until [Controller.Enable]
// is called.
func New(cc ControllerConfig) (*Controller, error) {
	if cc.Platform == nil {
		return nil, fmt.Errorf("pipeline: platform is required")
	}
	if cc.Transcriber == nil {
		return nil, fmt.Errorf("pipeline: transcriber is required")
	}
	if cc.Consumer == nil {
		return nil, fmt.Errorf("pipeline: consumer is required")
	}
	if cc.Config == nil {
		return nil, fmt.Errorf("pipeline: config is required")
	}
	if len(cc.Config.Languages.Targets) > 0 && cc.Translator == nil {
		return nil, fmt.Errorf("pipeline: translator is required when target languages are configured")
	}
	if cc.Metrics == nil {
		cc.Metrics = observe.DefaultMetrics()
	}

	return &Controller{
		platform:    cc.Platform,
		transcriber: cc.Transcriber,
		translator:  cc.Translator,
		consumer:    cc.Consumer,
		metrics:     cc.Metrics,
		logLevel:    cc.LogLevel,
		cfg:         cc.Config,
		dispatcher:  dispatch.New(cc.Config.Pipeline.Workers, dispatch.WithMetrics(cc.Metrics)),
	}, nil
}

// Enable starts a capture session, stopping any previous one first. The
// microphone is live when Enable returns without error.
func (c *Controller) Enable(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.stopSessionLocked()
	}

	c.generation++
	s, err := c.startSessionLocked(ctx, c.generation)
	if err != nil {
		return err
	}
	c.session = s
	return nil
}

// Disable stops the capture session. In-flight utterance processing is
// cancelled and its results are discarded. Disable on an idle controller is
// a no-op.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.stopSessionLocked()
	}
}

// Enabled reports whether a capture session is running.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Close disables the pipeline and releases the audio platform.
func (c *Controller) Close() error {
	c.Disable()
	return c.platform.Close()
}

// Apply installs a new configuration. Hot-reloadable changes (segmenter
// thresholds, gain, target languages, retry policy, log level) take effect
// on the running session; changes to the capture device, sample rates, or
// provider chains restart the session.
func (c *Controller) Apply(newCfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := config.Diff(c.cfg, newCfg)
	c.cfg = newCfg
	if !d.Changed() {
		return nil
	}

	if d.LogLevelChanged && c.logLevel != nil {
		c.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.RetryChanged {
		rc := retryFromConfig(newCfg.Retry)
		if s, ok := c.transcriber.(retrySettable); ok {
			s.SetRetry(rc)
		}
		if s, ok := c.translator.(retrySettable); ok {
			s.SetRetry(rc)
		}
	}

	if c.session == nil {
		return nil
	}

	if d.RequiresRestart {
		slog.Info("config change requires session restart")
		c.stopSessionLocked()
		c.dispatcher = dispatch.New(newCfg.Pipeline.Workers, dispatch.WithMetrics(c.metrics))
		c.generation++
		s, err := c.startSessionLocked(context.Background(), c.generation)
		if err != nil {
			return fmt.Errorf("pipeline: restart after config change: %w", err)
		}
		c.session = s
		return nil
	}

	if d.SegmenterChanged || d.GainChanged {
		c.session.reconfigure(
			&audio.Resampler{TargetRate: pipelineRate(newCfg), Gain: newCfg.Capture.Gain},
			segmenterFromConfig(newCfg.Segmenter),
			gateFromConfig(newCfg.Segmenter),
		)
		slog.Info("segmenter settings reloaded")
	}
	// Target language changes need no session work: the target list is
	// snapshotted per utterance.

	return nil
}

// startSessionLocked opens the capture device and begins the frame flow.
// Caller holds c.mu.
func (c *Controller) startSessionLocked(ctx context.Context, gen uint64) (*captureSession, error) {
	cfg := c.cfg

	dev, err := findDevice(c.platform, cfg.Capture.Device)
	if err != nil {
		return nil, err
	}

	captureRate := cfg.Capture.SampleRate
	if captureRate <= 0 {
		captureRate = DefaultCaptureRate
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &captureSession{
		ctrl:        c,
		generation:  gen,
		ctx:         sessCtx,
		cancel:      cancel,
		captureRate: captureRate,
		resampler:   &audio.Resampler{TargetRate: pipelineRate(cfg), Gain: cfg.Capture.Gain},
		seg:         segment.New(segmenterFromConfig(cfg.Segmenter)),
		gate:        gateFromConfig(cfg.Segmenter),
	}

	device, err := c.platform.OpenCapture(dev, audio.CaptureConfig{
		SampleRate: uint32(captureRate),
		Channels:   1,
	}, s.onData)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pipeline: open capture device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		_ = device.Close()
		cancel()
		return nil, fmt.Errorf("pipeline: start capture: %w", err)
	}

	c.metrics.ActiveSessions.Add(ctx, 1)

	deviceName := "default"
	if dev != nil {
		deviceName = dev.Name
	}
	slog.Info("capture session started",
		"device", deviceName,
		"capture_rate", captureRate,
		"pipeline_rate", pipelineRate(cfg),
		"targets", cfg.Languages.Targets,
	)
	return s, nil
}

// stopSessionLocked tears down the current session. Caller holds c.mu.
func (c *Controller) stopSessionLocked() {
	s := c.session
	c.session = nil
	s.stop()
	c.metrics.ActiveSessions.Add(context.Background(), -1)
	slog.Info("capture session stopped")
}

// current reports whether gen is still the live session generation.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.generation == gen
}

// snapshot returns the per-utterance view of the language configuration and
// the dispatcher. Taken once per utterance so hot-reloaded target lists apply
// from the next utterance on.
func (c *Controller) snapshot() (targets []dispatch.Target, sourceLang string, d *dispatch.Dispatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	targets = make([]dispatch.Target, 0, len(c.cfg.Languages.Targets))
	for _, lang := range c.cfg.Languages.Targets {
		targets = append(targets, dispatch.Target{Lang: lang, Provider: c.translator})
	}
	return targets, c.cfg.Languages.Source, c.dispatcher
}

// findDevice resolves a case-insensitive substring match against the capture
// device names. An empty substring selects the system default (nil).
func findDevice(platform audio.Platform, substr string) (*audio.DeviceInfo, error) {
	if substr == "" {
		return nil, nil
	}
	devices, err := platform.Devices()
	if err != nil {
		return nil, fmt.Errorf("pipeline: enumerate capture devices: %w", err)
	}
	needle := strings.ToLower(substr)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), needle) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("pipeline: no capture device matching %q", substr)
}

func pipelineRate(cfg *config.Config) int {
	if cfg.Pipeline.SampleRate > 0 {
		return cfg.Pipeline.SampleRate
	}
	return DefaultPipelineRate
}

func segmenterFromConfig(sc config.SegmenterConfig) segment.Config {
	return segment.Config{
		GateHigh:   sc.GateHigh,
		GateLow:    sc.GateLow,
		Pad:        msDuration(sc.PadMs),
		MinSpeech:  msDuration(sc.MinSpeechMs),
		MaxSegment: msDuration(sc.MaxSegmentMs),
	}
}

func gateFromConfig(sc config.SegmenterConfig) segment.QualityGate {
	return segment.QualityGate{
		MinVoicedFraction: sc.MinVoicedFraction,
		ShortDuration:     msDuration(sc.ShortDurationMs),
	}
}

func retryFromConfig(rc config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		Attempts:       rc.Attempts,
		InitialBackoff: msDuration(rc.InitialBackoffMs),
		MaxBackoff:     msDuration(rc.MaxBackoffMs),
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
