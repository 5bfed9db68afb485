package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper", "whisper-native"},
	"translate": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Gain < 0 || cfg.Capture.Gain > 10 {
		errs = append(errs, fmt.Errorf("capture.gain %.2f is out of range (0, 10]", cfg.Capture.Gain))
	}

	// Pipeline
	if cfg.Pipeline.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_rate %d must not be negative", cfg.Pipeline.SampleRate))
	}
	if cfg.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers %d must not be negative", cfg.Pipeline.Workers))
	}

	// Segmenter: the hysteresis gap is the whole point of two thresholds.
	seg := cfg.Segmenter
	if seg.GateHigh < 0 || seg.GateLow < 0 {
		errs = append(errs, errors.New("segmenter gates must not be negative"))
	}
	if seg.GateHigh != 0 && seg.GateLow != 0 && seg.GateHigh <= seg.GateLow {
		errs = append(errs, fmt.Errorf("segmenter.gate_high %.4f must be greater than segmenter.gate_low %.4f", seg.GateHigh, seg.GateLow))
	}
	if seg.PadMs < 0 || seg.MinSpeechMs < 0 || seg.MaxSegmentMs < 0 || seg.ShortDurationMs < 0 {
		errs = append(errs, errors.New("segmenter durations must not be negative"))
	}
	if seg.MinVoicedFraction < 0 || seg.MinVoicedFraction > 1 {
		errs = append(errs, fmt.Errorf("segmenter.min_voiced_fraction %.2f is out of range [0, 1]", seg.MinVoicedFraction))
	}

	// Languages
	targetsSeen := make(map[string]int, len(cfg.Languages.Targets))
	for i, lang := range cfg.Languages.Targets {
		if lang == "" {
			errs = append(errs, fmt.Errorf("languages.targets[%d] must not be empty", i))
			continue
		}
		if prev, ok := targetsSeen[lang]; ok {
			errs = append(errs, fmt.Errorf("languages.targets[%d] %q is a duplicate of languages.targets[%d]", i, lang, prev))
		}
		targetsSeen[lang] = i
		if lang == cfg.Languages.Source {
			slog.Warn("translation target equals the source language", "lang", lang)
		}
	}
	if len(cfg.Languages.Targets) == 0 {
		slog.Warn("languages.targets is empty; utterances will be transcribed but not translated")
	}

	// Providers
	errs = append(errs, validateChain("stt", cfg.Providers.STT)...)
	errs = append(errs, validateChain("translate", cfg.Providers.Translate)...)
	if cfg.Providers.Translate.Name == "" && len(cfg.Languages.Targets) > 0 {
		errs = append(errs, errors.New("languages.targets is set but providers.translate is not configured"))
	}

	// Retry
	if cfg.Retry.Attempts < 0 || cfg.Retry.InitialBackoffMs < 0 || cfg.Retry.MaxBackoffMs < 0 {
		errs = append(errs, errors.New("retry values must not be negative"))
	}

	return errors.Join(errs...)
}

// validateChain checks the primary and fallback entries of one provider
// chain.
func validateChain(kind string, chain ProviderChain) []error {
	var errs []error
	errs = append(errs, validateEntry(kind, kind, chain.ProviderEntry)...)
	for i, fb := range chain.Fallbacks {
		prefix := fmt.Sprintf("%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateEntry(kind, prefix, fb)...)
	}
	return errs
}

// validateEntry checks one provider entry against per-provider requirements.
func validateEntry(kind, prefix string, entry ProviderEntry) []error {
	if entry.Name == "" {
		return nil
	}
	validateProviderName(kind, entry.Name)

	var errs []error
	switch entry.Name {
	case "whisper":
		if entry.ServerURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s.server_url is required for the whisper provider", prefix))
		}
	case "whisper-native":
		if entry.ModelPath == "" {
			errs = append(errs, fmt.Errorf("providers.%s.model_path is required for the whisper-native provider", prefix))
		}
	}
	if kind == "translate" && entry.Model == "" {
		errs = append(errs, fmt.Errorf("providers.%s.model is required for translation providers", prefix))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
