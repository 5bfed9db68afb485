package config

import "slices"

// ConfigDiff describes what changed between two configs and how the change
// must be applied. Segmenter thresholds, gain, target languages, and log
// level can be hot-reloaded into a running capture session; device, sample
// rates, and provider chains need a session restart. The admin listen
// address is bound once at startup and is neither of those.
type ConfigDiff struct {
	// Hot-reloadable changes.
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	SegmenterChanged bool
	GainChanged      bool
	TargetsChanged   bool
	RetryChanged     bool

	// ListenAddrChanged is true when the admin listen address changed. The
	// capture session is unaffected; only a process restart rebinds the
	// admin server.
	ListenAddrChanged bool

	// RequiresRestart is true when capture device/rate, pipeline settings,
	// or provider chains changed.
	RequiresRestart bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SegmenterChanged || d.GainChanged ||
		d.TargetsChanged || d.RetryChanged || d.ListenAddrChanged ||
		d.RequiresRestart
}

// Diff compares old and new configs and classifies every change as either
// hot-reloadable or restart-requiring.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Segmenter != new.Segmenter {
		d.SegmenterChanged = true
	}
	if old.Capture.Gain != new.Capture.Gain {
		d.GainChanged = true
	}
	if !slices.Equal(old.Languages.Targets, new.Languages.Targets) ||
		old.Languages.Source != new.Languages.Source {
		d.TargetsChanged = true
	}
	if old.Retry != new.Retry {
		d.RetryChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.ListenAddrChanged = true
	}

	if old.Capture.Device != new.Capture.Device ||
		old.Capture.SampleRate != new.Capture.SampleRate ||
		old.Pipeline != new.Pipeline ||
		!chainEqual(old.Providers.STT, new.Providers.STT) ||
		!chainEqual(old.Providers.Translate, new.Providers.Translate) {
		d.RequiresRestart = true
	}

	return d
}

// chainEqual compares two provider chains including fallback order.
func chainEqual(a, b ProviderChain) bool {
	return a.ProviderEntry == b.ProviderEntry && slices.Equal(a.Fallbacks, b.Fallbacks)
}
