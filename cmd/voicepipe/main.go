// Command voicepipe captures microphone audio, segments it into utterances,
// transcribes them, and translates each transcript into the configured target
// languages. Results are written to stdout as JSON lines for the display
// frontend to render.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FusionCrew/voicepipe/internal/config"
	"github.com/FusionCrew/voicepipe/internal/health"
	"github.com/FusionCrew/voicepipe/internal/observe"
	"github.com/FusionCrew/voicepipe/internal/pipeline"
	"github.com/FusionCrew/voicepipe/internal/resilience"
	"github.com/FusionCrew/voicepipe/pkg/audio"
	"github.com/FusionCrew/voicepipe/pkg/provider/stt"
	"github.com/FusionCrew/voicepipe/pkg/provider/stt/whisper"
	"github.com/FusionCrew/voicepipe/pkg/provider/translate"
	"github.com/FusionCrew/voicepipe/pkg/provider/translate/anyllm"
	oatranslate "github.com/FusionCrew/voicepipe/pkg/provider/translate/openai"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	fakeInput := flag.String("fake", "", "replay the given WAV file instead of capturing from the microphone")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicepipe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicepipe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it without
	// replacing the handler.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("voicepipe starting",
		"version", version,
		"config", *configPath,
		"source", cfg.Languages.Source,
		"targets", cfg.Languages.Targets,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicepipe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Audio platform ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	var platform audio.Platform
	if *fakeInput != "" {
		fake, err := audio.NewFakePlatformFromWAV(*fakeInput, true)
		if err != nil {
			slog.Error("failed to load fake input", "path", *fakeInput, "err", err)
			return 1
		}
		// Frames arrive at the WAV's own rate regardless of what the config
		// asks for; keep the pipeline's clock honest.
		cfg.Capture.SampleRate = fake.Rate()
		platform = fake
		slog.Info("using fake capture", "path", *fakeInput, "rate", fake.Rate())
	} else {
		platform, err = reg.CreateAudio("malgo", cfg.Capture)
		if err != nil {
			slog.Error("failed to initialise audio platform", "err", err)
			return 1
		}
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	transcriber, err := buildSTTChain(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build transcription chain", "err", err)
		return 1
	}
	translator, err := buildTranslateChain(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build translation chain", "err", err)
		return 1
	}

	// ── Pipeline controller ───────────────────────────────────────────────────
	ctrl, err := pipeline.New(pipeline.ControllerConfig{
		Platform:    platform,
		Transcriber: transcriber,
		Translator:  translator,
		Consumer:    newStdoutConsumer(os.Stdout),
		Config:      cfg,
		Metrics:     metrics,
		LogLevel:    logLevel,
	})
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		return 1
	}

	// ── Admin endpoint (health + metrics) ─────────────────────────────────────
	var adminSrv *http.Server
	if cfg.Server.ListenAddr != "" {
		adminSrv = startAdminServer(cfg.Server.ListenAddr, healthCheckers(cfg, ctrl), metrics)
	}

	// ── Start capturing ───────────────────────────────────────────────────────
	if err := ctrl.Enable(ctx); err != nil {
		slog.Error("failed to start capture", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(oldCfg, newCfg *config.Config) {
		if config.Diff(oldCfg, newCfg).ListenAddrChanged {
			// The admin server binds its address once at startup.
			slog.Warn("admin listen address changed; restart the process to rebind",
				"old", oldCfg.Server.ListenAddr, "new", newCfg.Server.ListenAddr)
		}
		if err := ctrl.Apply(newCfg); err != nil {
			slog.Error("failed to apply config change", "err", err)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("pipeline running — press Ctrl+C to shut down")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	if err := ctrl.Close(); err != nil {
		slog.Warn("pipeline close error", "err", err)
	}
	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("admin server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders lists the translation backends served through any-llm-go
// with the common APIKey+BaseURL option pattern.
var anyllmProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.ServerURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisper.NewNative(entry.ModelPath)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []oatranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatranslate.WithBaseURL(entry.BaseURL))
		}
		if entry.Temperature != 0 {
			opts = append(opts, oatranslate.WithTemperature(entry.Temperature))
		}
		if entry.MaxTokens != 0 {
			opts = append(opts, oatranslate.WithMaxTokens(entry.MaxTokens))
		}
		return oatranslate.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllmProviders {
		reg.RegisterTranslate(providerName, func(entry config.ProviderEntry) (translate.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return newAnyLLM(providerName, entry, opts)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterTranslate("ollama", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return newAnyLLM("ollama", entry, opts)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("malgo", func(_ config.CaptureConfig) (audio.Platform, error) {
		return audio.NewMalgoPlatform()
	})
}

// newAnyLLM constructs an any-llm translation provider and applies the shared
// sampling settings from the entry.
func newAnyLLM(providerName string, entry config.ProviderEntry, opts []anyllmlib.Option) (translate.Provider, error) {
	p, err := anyllm.New(providerName, entry.Model, opts...)
	if err != nil {
		return nil, err
	}
	if entry.Temperature != 0 {
		p.SetTemperature(entry.Temperature)
	}
	if entry.MaxTokens != 0 {
		p.SetMaxTokens(entry.MaxTokens)
	}
	return p, nil
}

// providerObserver feeds the provider request and error counters from the
// fallback walk's per-attempt outcomes.
func providerObserver(m *observe.Metrics, kind string) func(name string, err error) {
	return func(name string, err error) {
		ctx := context.Background()
		if err != nil {
			m.RecordProviderRequest(ctx, name, kind, "error")
			m.RecordProviderError(ctx, name, kind)
			return
		}
		m.RecordProviderRequest(ctx, name, kind, "ok")
	}
}

// buildSTTChain wraps the configured transcription backends in a fallback
// chain with retry and per-backend circuit breakers.
func buildSTTChain(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (stt.Provider, error) {
	primary, err := reg.CreateSTT(cfg.Providers.STT.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	chain := resilience.NewSTTFallback(primary, cfg.Providers.STT.Name,
		resilience.FallbackConfig{Observer: providerObserver(metrics, "stt")},
		retryFromConfig(cfg.Retry))
	for _, fb := range cfg.Providers.STT.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "stt", "name", fb.Name, "role", "fallback")
	}
	return chain, nil
}

// buildTranslateChain mirrors buildSTTChain for translation. Returns nil when
// no translation provider is configured.
func buildTranslateChain(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (translate.Provider, error) {
	if cfg.Providers.Translate.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateTranslate(cfg.Providers.Translate.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("create translate provider %q: %w", cfg.Providers.Translate.Name, err)
	}
	slog.Info("provider created", "kind", "translate", "name", cfg.Providers.Translate.Name)

	chain := resilience.NewTranslateFallback(primary, cfg.Providers.Translate.Name,
		resilience.FallbackConfig{Observer: providerObserver(metrics, "translate")},
		retryFromConfig(cfg.Retry))
	for _, fb := range cfg.Providers.Translate.Fallbacks {
		p, err := reg.CreateTranslate(fb)
		if err != nil {
			return nil, fmt.Errorf("create translate fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "translate", "name", fb.Name, "role", "fallback")
	}
	return chain, nil
}

func retryFromConfig(rc config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		Attempts:       rc.Attempts,
		InitialBackoff: time.Duration(rc.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(rc.MaxBackoffMs) * time.Millisecond,
	}
}

// ── Admin endpoint ────────────────────────────────────────────────────────────

// healthCheckers assembles the readiness probes for the admin endpoint.
func healthCheckers(cfg *config.Config, ctrl *pipeline.Controller) []health.Checker {
	var checkers []health.Checker

	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.ServerURL != "" {
		checkers = append(checkers, health.CheckHTTP("whisper", cfg.Providers.STT.ServerURL+"/health"))
	}
	checkers = append(checkers, health.Checker{
		Name: "capture",
		Check: func(_ context.Context) error {
			if !ctrl.Enabled() {
				return errors.New("capture session not running")
			}
			return nil
		},
	})
	return checkers
}

// startAdminServer serves health and metrics behind the observe middleware.
func startAdminServer(addr string, checkers []health.Checker, metrics *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("admin endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server error", "err", err)
		}
	}()
	return srv
}

// printDevices enumerates capture devices for the -list-devices flag.
func printDevices() int {
	platform, err := audio.NewMalgoPlatform()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicepipe: audio platform: %v\n", err)
		return 1
	}
	defer platform.Close()

	devices, err := platform.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicepipe: enumerate devices: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Println("no capture devices found")
		return 0
	}
	for _, d := range devices {
		fmt.Println(d.Name)
	}
	return 0
}
