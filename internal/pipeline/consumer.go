package pipeline

import "github.com/FusionCrew/voicepipe/internal/dispatch"

// Result is one fully processed utterance: the transcript plus its
// translations in configured target order. Targets whose translation failed
// are omitted.
type Result struct {
	// Original is the transcript in the source language.
	Original string

	// SourceLang is the configured source language code. Empty when the
	// transcription backend auto-detected the language.
	SourceLang string

	// Translations holds one entry per successfully translated target.
	Translations []dispatch.Translation
}

// Consumer receives pipeline output. Implementations render results to the
// display frontend (the bundled one writes JSON lines to stdout).
//
// Callbacks are invoked from pipeline goroutines, never concurrently with
// themselves for the same utterance, but possibly concurrently across
// utterances. Implementations must be safe for concurrent use and must not
// block for long; a slow consumer delays delivery, not capture.
type Consumer interface {
	// OnResult delivers a completed utterance.
	OnResult(res Result)

	// OnError reports an unrecoverable processing failure for one utterance.
	// The pipeline keeps running; the consumer may surface the error to the
	// operator.
	OnError(err error)
}
