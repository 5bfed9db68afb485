package segment

import "time"

// Quality-gate defaults. A segment must fail both conditions to be
// rejected, so a long low-energy segment (quiet speech) and a short
// high-energy one (a sharp word) both pass.
const (
	DefaultMinVoicedFraction = 0.25
	DefaultShortDuration     = 600 * time.Millisecond
)

// QualityGate filters finalized segments that are unlikely to contain
// usable speech, such as keyboard clicks or door slams that crossed the
// energy gate. A segment is rejected only when it is BOTH mostly unvoiced
// and short; either property alone is not disqualifying.
type QualityGate struct {
	// MinVoicedFraction is the voiced fraction below which a segment is
	// suspect. Zero means the package default.
	MinVoicedFraction float64

	// ShortDuration is the duration below which a segment is suspect.
	// Zero means the package default.
	ShortDuration time.Duration
}

// Admit reports whether a finalized segment should proceed to
// transcription. Rejection is a routine outcome, surfaced to metrics but
// never as an error.
func (g QualityGate) Admit(st Stats) bool {
	minFrac := g.MinVoicedFraction
	if minFrac == 0 {
		minFrac = DefaultMinVoicedFraction
	}
	short := g.ShortDuration
	if short == 0 {
		short = DefaultShortDuration
	}
	return st.VoicedFraction >= minFrac || st.Duration >= short
}
