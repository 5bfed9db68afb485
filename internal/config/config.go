// Package config provides the configuration schema, loader, file watcher,
// and provider registry for the voicepipe translation pipeline.
package config

import "log/slog"

// LogLevel controls log verbosity for the voicepipe process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding [slog.Level]. Unknown or empty levels map
// to [slog.LevelInfo].
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for voicepipe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Languages LanguagesConfig `yaml:"languages"`
	Providers ProvidersConfig `yaml:"providers"`
	Retry     RetryConfig     `yaml:"retry"`
}

// ServerConfig holds settings for the admin HTTP endpoint (health checks and
// metrics) and logging.
type ServerConfig struct {
	// ListenAddr is the TCP address the admin endpoint listens on
	// (e.g., ":9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig selects and tunes the microphone input.
type CaptureConfig struct {
	// Device is a case-insensitive substring matched against capture device
	// names. Empty selects the system default device.
	Device string `yaml:"device"`

	// SampleRate is the rate requested from the device in Hz. The pipeline
	// resamples to its own rate regardless. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// Gain is a linear pre-gain applied after resampling, in (0, 10].
	// Zero means 1.0 (no gain).
	Gain float64 `yaml:"gain"`
}

// PipelineConfig holds processing-stage settings.
type PipelineConfig struct {
	// SampleRate is the internal mono processing rate in Hz.
	// Default: 16000, which is what whisper models expect.
	SampleRate int `yaml:"sample_rate"`

	// Workers bounds concurrent translation requests per utterance.
	// Default: 4.
	Workers int `yaml:"workers"`
}

// SegmenterConfig tunes utterance boundary detection and the quality gate.
// Zero values take the segment package defaults.
type SegmenterConfig struct {
	// GateHigh is the RMS energy that starts a segment. Must be greater
	// than GateLow when both are set.
	GateHigh float64 `yaml:"gate_high"`

	// GateLow is the RMS energy below which a frame counts as silence.
	GateLow float64 `yaml:"gate_low"`

	// PadMs is the trailing silence in milliseconds that ends a segment.
	PadMs int `yaml:"pad_ms"`

	// MinSpeechMs discards segments shorter than this many milliseconds.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MaxSegmentMs force-finalizes a segment after this many milliseconds.
	MaxSegmentMs int `yaml:"max_segment_ms"`

	// MinVoicedFraction is the quality-gate voiced fraction in [0, 1].
	MinVoicedFraction float64 `yaml:"min_voiced_fraction"`

	// ShortDurationMs is the quality-gate short-segment bound.
	ShortDurationMs int `yaml:"short_duration_ms"`
}

// LanguagesConfig declares the source language of the speech and the target
// languages every utterance is translated into.
type LanguagesConfig struct {
	// Source is the BCP-47 code of the spoken language (e.g., "en").
	// Empty lets the transcription backend auto-detect.
	Source string `yaml:"source"`

	// Targets lists the languages to translate into, in output order.
	Targets []string `yaml:"targets"`
}

// ProvidersConfig declares the backend chain for each pipeline stage.
type ProvidersConfig struct {
	STT       ProviderChain `yaml:"stt"`
	Translate ProviderChain `yaml:"translate"`
}

// ProviderChain is a primary provider plus ordered fallbacks tried when the
// primary fails or its circuit breaker is open.
type ProviderChain struct {
	ProviderEntry `yaml:",inline"`

	// Fallbacks are tried in order after the primary.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper", "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "base.en").
	Model string `yaml:"model"`

	// ServerURL is the whisper-server address for the "whisper" STT
	// provider (e.g., "http://localhost:8080").
	ServerURL string `yaml:"server_url"`

	// ModelPath is the GGML model file path for the "whisper-native" STT
	// provider.
	ModelPath string `yaml:"model_path"`

	// Temperature is the sampling temperature for translation providers.
	// Zero means the model default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps translation completion length. Zero means the model
	// default.
	MaxTokens int `yaml:"max_tokens"`
}

// RetryConfig tunes the bounded retry applied to provider calls.
// Zero values take the resilience package defaults.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	Attempts int `yaml:"attempts"`

	// InitialBackoffMs is the delay before the second attempt in
	// milliseconds; it doubles after every failure.
	InitialBackoffMs int `yaml:"initial_backoff_ms"`

	// MaxBackoffMs caps the doubling.
	MaxBackoffMs int `yaml:"max_backoff_ms"`
}
