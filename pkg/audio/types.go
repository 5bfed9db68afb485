// Package audio provides the audio primitives for the voicepipe capture
// pipeline: the Frame type that flows between pipeline stages, energy
// measurement helpers, the group-mean Resampler, a deterministic RIFF/WAVE
// codec, and the capture Platform abstraction with malgo-backed and fake
// implementations.
//
// All processing in this package operates on mono float samples in the range
// [-1, 1]. Conversion from the 16-bit signed little-endian PCM delivered by
// capture hardware happens exactly once, at the capture boundary, via
// [FrameFromPCM16]; conversion back to int16 happens exactly once, at the
// upload boundary, via [EncodeWAV].
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is a fixed-duration slice of mono float samples at a single sample
// rate. Frames are the atomic unit of audio transport: produced once per
// capture callback, normalized by the [Resampler], and consumed by the
// segmenter. A Frame is never retained past the pipeline stage that owns it.
type Frame struct {
	// Samples are mono amplitude values in [-1, 1].
	Samples []float32

	// Rate is the sample rate in Hz.
	Rate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the frame's duration derived from its sample count.
func (f Frame) Duration() time.Duration {
	if f.Rate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.Rate)
}

// FrameFromPCM16 converts 16-bit signed little-endian PCM bytes into a Frame
// of float samples. A trailing odd byte is ignored.
func FrameFromPCM16(pcm []byte, rate int, ts time.Duration) Frame {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768
	}
	return Frame{Samples: samples, Rate: rate, Timestamp: ts}
}

// RMS returns the root-mean-square amplitude of samples, a proxy for
// loudness. Returns 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude in samples.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}
