// Package translate defines the Provider interface for text translation
// backends.
//
// A translation provider wraps a chat-completion LLM behind a single
// operation: source text plus a language pair in, translated text out. The
// fan-out across target languages is handled upstream by the dispatcher;
// providers translate exactly one pair per call.
//
// Implementations must be safe for concurrent use: the dispatcher issues
// requests for all target languages of an utterance in parallel.
package translate

import (
	"context"
	"fmt"
)

// Request is one translation request for a single language pair.
type Request struct {
	// Text is the source text to translate.
	Text string

	// SourceLang is the BCP-47 language code the text is written in
	// (e.g., "en"). Empty lets the model infer the source language.
	SourceLang string

	// TargetLang is the BCP-47 language code to translate into. Must be
	// non-empty.
	TargetLang string
}

// Result is the outcome of a successful translation.
type Result struct {
	// Text is the translated text, trimmed of surrounding whitespace.
	Text string
}

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate converts req.Text into req.TargetLang and blocks until the
	// backend responds or the context is cancelled.
	Translate(ctx context.Context, req Request) (Result, error)
}

// Prompt builds the system prompt shared by the chat-completion backends.
// The model is instructed to answer with the translation alone so the
// response can be used verbatim.
func Prompt(sourceLang, targetLang string) string {
	if sourceLang == "" {
		return fmt.Sprintf(
			"You are a translation engine. Translate the user's message into %s. "+
				"Respond with the translation only, no explanations or quotes.",
			targetLang)
	}
	return fmt.Sprintf(
		"You are a translation engine. Translate the user's message from %s into %s. "+
			"Respond with the translation only, no explanations or quotes.",
		sourceLang, targetLang)
}
