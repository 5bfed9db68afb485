// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp server,
// the CGO bindings, or a test double) behind a single batch operation:
// a complete WAV-encoded utterance in, transcribed text out. Utterance
// boundaries are decided upstream by the segmenter, so providers never see
// partial audio and never need streaming state.
//
// Implementations must be safe for concurrent use; the pipeline may issue a
// new request while an older one is still being cancelled.
package stt

import "context"

// Request is one batch transcription request.
type Request struct {
	// Audio is a complete RIFF/WAVE file: 16-bit signed little-endian PCM,
	// mono, at the pipeline sample rate.
	Audio []byte

	// Language is the BCP-47 language code of the speech (e.g., "en", "uk").
	// Empty lets the backend auto-detect, if supported.
	Language string

	// Model is a backend-specific model identifier (e.g., "base.en"). Empty
	// means whatever the backend was started with.
	Model string
}

// Result is the outcome of a successful transcription.
type Result struct {
	// Text is the transcribed speech, trimmed of surrounding whitespace.
	// Empty means the backend heard no words; callers treat this as a
	// silent segment, not an error.
	Text string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe submits one complete utterance and blocks until the backend
	// returns text or the context is cancelled. A cancelled context is the
	// normal way to abandon a superseded request; implementations must
	// return ctx.Err() promptly in that case.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
