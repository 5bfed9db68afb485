// Package segment turns a continuous stream of normalized audio frames into
// discrete spoken utterances.
//
// The central type is [Segmenter], a two-state machine (idle / speaking)
// driven by per-frame RMS energy with two-threshold hysteresis: a segment
// starts when energy reaches the high gate and ends when trailing silence
// below the low gate reaches the configured pad, or when the segment hits
// its maximum duration. The gap between the two gates prevents rapid
// start/stop flapping at noise levels straddling a single threshold.
//
// Feed is called synchronously from the audio capture callback and performs
// no I/O; it must stay cheap and bounded.
package segment

import (
	"time"

	"github.com/FusionCrew/voicepipe/pkg/audio"
)

// Default tuning values. These are empirically tuned starting points, not
// derived constants; deployments should validate them against real
// microphone traces and override via [Config].
const (
	DefaultGateHigh   = 0.01
	DefaultGateLow    = 0.005
	DefaultPad        = 700 * time.Millisecond
	DefaultMinSpeech  = 300 * time.Millisecond
	DefaultMaxSegment = 15 * time.Second
)

// Config holds the voice-activity tuning for a [Segmenter]. Zero-value
// fields are replaced with the package defaults.
type Config struct {
	// GateHigh is the RMS energy at or above which an idle segmenter starts
	// a new segment. Must be greater than GateLow.
	GateHigh float64

	// GateLow is the RMS energy below which a speaking segmenter counts a
	// frame as trailing silence.
	GateLow float64

	// Pad is the trailing-silence duration that finalizes a segment.
	Pad time.Duration

	// MinSpeech is the minimum total duration for a finalized segment.
	// Shorter segments are discarded silently without reaching the network.
	MinSpeech time.Duration

	// MaxSegment forces finalization even while still speaking, bounding
	// memory and request size for continuous speech.
	MaxSegment time.Duration
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.GateHigh == 0 {
		c.GateHigh = DefaultGateHigh
	}
	if c.GateLow == 0 {
		c.GateLow = DefaultGateLow
	}
	if c.Pad == 0 {
		c.Pad = DefaultPad
	}
	if c.MinSpeech == 0 {
		c.MinSpeech = DefaultMinSpeech
	}
	if c.MaxSegment == 0 {
		c.MaxSegment = DefaultMaxSegment
	}
	return c
}

// Stats is a read-only summary of a finalized segment, used by the quality
// gate and attached to the transcription request for server-side
// diagnostics.
type Stats struct {
	// Duration is the total segment duration.
	Duration time.Duration

	// Voiced is the accumulated duration of frames at or above the low gate.
	Voiced time.Duration

	// VoicedFraction is Voiced / Duration in [0, 1].
	VoicedFraction float64

	// RMS is the root-mean-square energy over the whole segment.
	RMS float64

	// Peak is the maximum absolute amplitude in the segment.
	Peak float64
}

// Segment is one finalized utterance: the merged sample buffer at the
// pipeline rate plus its stats. The Segmenter hands the buffer off by value
// at finalize time and keeps no reference to it.
type Segment struct {
	Samples []float32
	Rate    int
	Stats   Stats
}

// Outcome classifies the result of feeding one frame.
type Outcome int

const (
	// OutcomeNone means no segment boundary was reached.
	OutcomeNone Outcome = iota

	// OutcomeFinalized means a complete segment is returned alongside.
	OutcomeFinalized

	// OutcomeTooShort means a segment ended below the minimum speech
	// duration and was discarded. No segment is returned; this is a routine
	// outcome of a live microphone, not an error.
	OutcomeTooShort
)

// segState is the segmenter's explicit state tag.
type segState int

const (
	stateIdle segState = iota
	stateSpeaking
)

// Segmenter is the utterance-boundary state machine. It is not safe for
// concurrent use; the capture session serializes Feed calls in frame
// arrival order.
//
// Invariant: the accumulation buffer is non-nil if and only if the state is
// speaking; finalize-or-discard empties it before any new frame is appended.
type Segmenter struct {
	cfg   Config
	state segState

	// Valid only while state == stateSpeaking.
	buf     []float32
	rate    int
	total   time.Duration
	voiced  time.Duration
	silence time.Duration
}

// New creates a Segmenter in the idle state. Zero-value config fields take
// the package defaults.
func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

// Speaking reports whether the segmenter is accumulating a segment.
func (s *Segmenter) Speaking() bool { return s.state == stateSpeaking }

// Reset returns the segmenter to idle, discarding any partial segment.
// Called on session teardown.
func (s *Segmenter) Reset() {
	s.state = stateIdle
	s.clear()
}

// Feed consumes one normalized frame. It returns [OutcomeFinalized] with the
// completed segment when a boundary is reached, [OutcomeTooShort] when a
// boundary produced a segment below the minimum speech duration, and
// [OutcomeNone] otherwise.
func (s *Segmenter) Feed(frame audio.Frame) (Segment, Outcome) {
	energy := audio.RMS(frame.Samples)
	d := frame.Duration()

	switch s.state {
	case stateIdle:
		if energy < s.cfg.GateHigh {
			return Segment{}, OutcomeNone
		}
		// The triggering frame is the first element of the new buffer; both
		// voiced and total accounting begin from it.
		s.state = stateSpeaking
		s.buf = append(s.buf, frame.Samples...)
		s.rate = frame.Rate
		s.total = d
		s.voiced = d
		s.silence = 0
		return Segment{}, OutcomeNone

	case stateSpeaking:
		s.buf = append(s.buf, frame.Samples...)
		s.total += d

		if energy < s.cfg.GateLow {
			s.silence += d
			if s.silence >= s.cfg.Pad || s.total >= s.cfg.MaxSegment {
				return s.finalize()
			}
		} else {
			s.silence = 0
			s.voiced += d
			if s.total >= s.cfg.MaxSegment {
				return s.finalize()
			}
		}
		return Segment{}, OutcomeNone
	}
	return Segment{}, OutcomeNone
}

// finalize ends the current segment, transitions back to idle, and applies
// the minimum-duration check — the first rejection point, before the quality
// gate ever sees the segment.
func (s *Segmenter) finalize() (Segment, Outcome) {
	total := s.total
	if total < s.cfg.MinSpeech {
		s.state = stateIdle
		s.clear()
		return Segment{}, OutcomeTooShort
	}

	seg := Segment{
		Samples: s.buf,
		Rate:    s.rate,
		Stats: Stats{
			Duration:       total,
			Voiced:         s.voiced,
			VoicedFraction: float64(s.voiced) / float64(total),
			RMS:            audio.RMS(s.buf),
			Peak:           audio.Peak(s.buf),
		},
	}
	s.state = stateIdle
	s.clear()
	return seg, OutcomeFinalized
}

// clear empties the accumulation state. The buffer is handed off by
// reference in finalize, so it is released rather than truncated.
func (s *Segmenter) clear() {
	s.buf = nil
	s.rate = 0
	s.total = 0
	s.voiced = 0
	s.silence = 0
}
