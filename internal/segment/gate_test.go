package segment_test

import (
	"testing"
	"time"

	"github.com/FusionCrew/voicepipe/internal/segment"
)

func TestQualityGateAdmit(t *testing.T) {
	gate := segment.QualityGate{
		MinVoicedFraction: 0.25,
		ShortDuration:     600 * time.Millisecond,
	}

	tests := []struct {
		name  string
		stats segment.Stats
		want  bool
	}{
		{
			name:  "voiced and long",
			stats: segment.Stats{Duration: 2 * time.Second, VoicedFraction: 0.8},
			want:  true,
		},
		{
			name: "quiet but long",
			// Mostly unvoiced, but long enough to be soft speech.
			stats: segment.Stats{Duration: 3 * time.Second, VoicedFraction: 0.1},
			want:  true,
		},
		{
			name: "short but voiced",
			// A sharp single word: short, but clearly voiced.
			stats: segment.Stats{Duration: 400 * time.Millisecond, VoicedFraction: 0.9},
			want:  true,
		},
		{
			name: "short and unvoiced",
			// The transient-noise shape: a click that crossed the gate.
			stats: segment.Stats{Duration: 400 * time.Millisecond, VoicedFraction: 0.1},
			want:  false,
		},
		{
			name:  "exactly at both limits",
			stats: segment.Stats{Duration: 600 * time.Millisecond, VoicedFraction: 0.25},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.Admit(tt.stats); got != tt.want {
				t.Errorf("Admit(%+v) = %v, want %v", tt.stats, got, tt.want)
			}
		})
	}
}

func TestQualityGateDefaults(t *testing.T) {
	var gate segment.QualityGate

	if !gate.Admit(segment.Stats{Duration: time.Second, VoicedFraction: 0.5}) {
		t.Error("zero-value gate rejected a clearly voiced segment")
	}
	if gate.Admit(segment.Stats{Duration: 200 * time.Millisecond, VoicedFraction: 0.05}) {
		t.Error("zero-value gate admitted a short unvoiced transient")
	}
}
