package audio

// Resampler converts mono float frames from an arbitrary input rate to a
// fixed target rate by averaging groups of input samples mapped by a linear
// time ratio. For an input of N samples at rate Rin the output holds exactly
// floor(N·target/Rin) samples.
//
// The conversion is deterministic and stateless per call: time alignment
// across consecutive frames is the caller's responsibility via continuous
// frame ordering. Create one Resampler per stream and feed it frames in
// arrival order.
type Resampler struct {
	// TargetRate is the output sample rate in Hz (16000 for the STT pipeline).
	TargetRate int

	// Gain is an optional pre-gain multiplier applied before rate conversion,
	// with a symmetric clamp to [-1, 1] after scaling. Values > 1 boost weak
	// microphones at the cost of clipping distortion on loud input; this is an
	// accepted trade-off, not a defect. Zero or 1 disables the pre-gain.
	Gain float64
}

// Resample converts frame to the target rate. If the frame is already at the
// target rate and no pre-gain is configured, the input is returned unchanged.
func (r *Resampler) Resample(frame Frame) Frame {
	samples := frame.Samples
	if g := r.Gain; g != 0 && g != 1 {
		samples = applyGain(samples, float32(g))
	}

	if frame.Rate == r.TargetRate || frame.Rate <= 0 || r.TargetRate <= 0 {
		return Frame{Samples: samples, Rate: frame.Rate, Timestamp: frame.Timestamp}
	}

	n := len(samples)
	m := n * r.TargetRate / frame.Rate
	if m == 0 {
		return Frame{Rate: r.TargetRate, Timestamp: frame.Timestamp}
	}

	out := make([]float32, m)
	ratio := float64(frame.Rate) / float64(r.TargetRate)
	for i := range out {
		lo := int(float64(i) * ratio)
		hi := int(float64(i+1) * ratio)
		if hi > n {
			hi = n
		}
		if hi <= lo {
			hi = lo + 1
		}
		var sum float64
		for _, s := range samples[lo:hi] {
			sum += float64(s)
		}
		out[i] = float32(sum / float64(hi-lo))
	}
	return Frame{Samples: out, Rate: r.TargetRate, Timestamp: frame.Timestamp}
}

// applyGain scales samples by g and clamps the result to [-1, 1].
// The input slice is not modified.
func applyGain(samples []float32, g float32) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		v := s * g
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}
