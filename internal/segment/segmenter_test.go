package segment_test

import (
	"testing"
	"time"

	"github.com/FusionCrew/voicepipe/internal/segment"
	"github.com/FusionCrew/voicepipe/pkg/audio"
)

const testRate = 16000

// frame builds a 10 ms constant-amplitude frame. The RMS of a constant
// signal equals its amplitude, which makes gate behavior exact in tests.
func frame(amp float64) audio.Frame {
	samples := make([]float32, testRate/100)
	for i := range samples {
		samples[i] = float32(amp)
	}
	return audio.Frame{Samples: samples, Rate: testRate}
}

// feedAll feeds n copies of a frame, failing the test on any boundary.
func feedAll(t *testing.T, s *segment.Segmenter, f audio.Frame, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, out := s.Feed(f); out != segment.OutcomeNone {
			t.Fatalf("frame %d: outcome = %v, want OutcomeNone", i, out)
		}
	}
}

func TestSegmenterIdleBelowHighGate(t *testing.T) {
	s := segment.New(segment.Config{GateHigh: 0.01, GateLow: 0.005})

	// Energy between the gates must not start a segment while idle; only
	// crossing the high gate does.
	feedAll(t, s, frame(0.007), 50)
	if s.Speaking() {
		t.Fatal("segmenter started below the high gate")
	}

	if _, out := s.Feed(frame(0.05)); out != segment.OutcomeNone {
		t.Fatalf("outcome = %v, want OutcomeNone", out)
	}
	if !s.Speaking() {
		t.Fatal("segmenter did not start at the high gate")
	}
}

func TestSegmenterPadFinalizes(t *testing.T) {
	s := segment.New(segment.Config{
		GateHigh:  0.01,
		GateLow:   0.005,
		Pad:       70 * time.Millisecond,
		MinSpeech: 300 * time.Millisecond,
	})

	// 1000 ms of steady speech, then silence until the pad elapses.
	feedAll(t, s, frame(0.05), 100)
	feedAll(t, s, frame(0), 6)

	seg, out := s.Feed(frame(0))
	if out != segment.OutcomeFinalized {
		t.Fatalf("outcome = %v, want OutcomeFinalized", out)
	}
	if s.Speaking() {
		t.Fatal("segmenter still speaking after finalize")
	}

	if got, want := seg.Stats.Duration, 1070*time.Millisecond; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
	if got, want := seg.Stats.Voiced, 1000*time.Millisecond; got != want {
		t.Errorf("Voiced = %v, want %v", got, want)
	}
	if got, want := len(seg.Samples), 107*testRate/100; got != want {
		t.Errorf("len(Samples) = %d, want %d", got, want)
	}
	if seg.Rate != testRate {
		t.Errorf("Rate = %d, want %d", seg.Rate, testRate)
	}
}

func TestSegmenterHysteresisNoFlapping(t *testing.T) {
	s := segment.New(segment.Config{
		GateHigh:  0.01,
		GateLow:   0.005,
		Pad:       100 * time.Millisecond,
		MinSpeech: 100 * time.Millisecond,
	})

	// Energy oscillating between the gates counts as voiced while speaking
	// and must never accumulate trailing silence.
	feedAll(t, s, frame(0.05), 20)
	feedAll(t, s, frame(0.007), 30)
	feedAll(t, s, frame(0), 9)

	seg, out := s.Feed(frame(0))
	if out != segment.OutcomeFinalized {
		t.Fatalf("outcome = %v, want OutcomeFinalized", out)
	}
	if got, want := seg.Stats.Voiced, 500*time.Millisecond; got != want {
		t.Errorf("Voiced = %v, want %v", got, want)
	}
	if got, want := seg.Stats.Duration, 600*time.Millisecond; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
}

func TestSegmenterSilenceResetOnVoice(t *testing.T) {
	s := segment.New(segment.Config{
		GateHigh:  0.01,
		GateLow:   0.005,
		Pad:       100 * time.Millisecond,
		MinSpeech: 100 * time.Millisecond,
	})

	// A voiced frame inside a pause resets the trailing-silence counter, so
	// both halves land in one segment.
	feedAll(t, s, frame(0.05), 30)
	feedAll(t, s, frame(0), 9) // 90 ms < pad
	feedAll(t, s, frame(0.05), 30)
	feedAll(t, s, frame(0), 9)

	seg, out := s.Feed(frame(0))
	if out != segment.OutcomeFinalized {
		t.Fatalf("outcome = %v, want OutcomeFinalized", out)
	}
	if got, want := seg.Stats.Duration, 880*time.Millisecond; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
}

func TestSegmenterMinSpeechDiscard(t *testing.T) {
	s := segment.New(segment.Config{
		GateHigh:  0.01,
		GateLow:   0.005,
		Pad:       50 * time.Millisecond,
		MinSpeech: 300 * time.Millisecond,
	})

	feedAll(t, s, frame(0.05), 10) // 100 ms of speech
	feedAll(t, s, frame(0), 4)

	seg, out := s.Feed(frame(0))
	if out != segment.OutcomeTooShort {
		t.Fatalf("outcome = %v, want OutcomeTooShort", out)
	}
	if seg.Samples != nil {
		t.Error("discarded segment carried samples")
	}
	if s.Speaking() {
		t.Fatal("segmenter still speaking after discard")
	}
}

func TestSegmenterMaxSegmentForcesFinalize(t *testing.T) {
	s := segment.New(segment.Config{
		GateHigh:   0.01,
		GateLow:    0.005,
		Pad:        700 * time.Millisecond,
		MinSpeech:  100 * time.Millisecond,
		MaxSegment: 500 * time.Millisecond,
	})

	// Continuous speech never reaches the pad; the cap must cut it.
	feedAll(t, s, frame(0.05), 49)
	seg, out := s.Feed(frame(0.05))
	if out != segment.OutcomeFinalized {
		t.Fatalf("outcome = %v, want OutcomeFinalized", out)
	}
	if got, want := seg.Stats.Duration, 500*time.Millisecond; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
	if got, want := seg.Stats.VoicedFraction, 1.0; got != want {
		t.Errorf("VoicedFraction = %v, want %v", got, want)
	}
}

func TestSegmenterReset(t *testing.T) {
	s := segment.New(segment.Config{})
	feedAll(t, s, frame(0.05), 10)
	if !s.Speaking() {
		t.Fatal("segmenter not speaking before reset")
	}
	s.Reset()
	if s.Speaking() {
		t.Fatal("segmenter speaking after reset")
	}

	// A fresh segment after reset must not contain pre-reset audio.
	feedAll(t, s, frame(0.05), 40)
	feedAll(t, s, frame(0), 69)
	seg, out := s.Feed(frame(0))
	if out != segment.OutcomeFinalized {
		t.Fatalf("outcome = %v, want OutcomeFinalized", out)
	}
	if got, want := seg.Stats.Duration, 1100*time.Millisecond; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
}

func TestSegmenterStats(t *testing.T) {
	s := segment.New(segment.Config{
		GateHigh:  0.01,
		GateLow:   0.005,
		Pad:       100 * time.Millisecond,
		MinSpeech: 100 * time.Millisecond,
	})

	feedAll(t, s, frame(0.5), 30)
	feedAll(t, s, frame(0), 9)
	seg, out := s.Feed(frame(0))
	if out != segment.OutcomeFinalized {
		t.Fatalf("outcome = %v, want OutcomeFinalized", out)
	}

	st := seg.Stats
	wantFrac := float64(300*time.Millisecond) / float64(400*time.Millisecond)
	if diff := st.VoicedFraction - wantFrac; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("VoicedFraction = %v, want %v", st.VoicedFraction, wantFrac)
	}
	if got, want := st.Peak, 0.5; got != want {
		t.Errorf("Peak = %v, want %v", got, want)
	}
	// RMS over 300 ms at 0.5 and 100 ms at 0: sqrt(0.25 * 3/4).
	wantRMS := 0.4330127018922193
	if diff := st.RMS - wantRMS; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("RMS = %v, want %v", st.RMS, wantRMS)
	}
}
