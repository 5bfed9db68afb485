package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/FusionCrew/voicepipe/internal/pipeline"
)

// utteranceLine is the JSON line emitted for each processed utterance. The
// kiosk frontend reads these from the process's stdout.
type utteranceLine struct {
	Type         string            `json:"type"`
	Original     string            `json:"original"`
	SourceLang   string            `json:"source_lang,omitempty"`
	Translations []translationLine `json:"translations"`
}

type translationLine struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

type errorLine struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// stdoutConsumer writes pipeline output as JSON lines. Safe for concurrent
// use; one line per callback.
type stdoutConsumer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ pipeline.Consumer = (*stdoutConsumer)(nil)

func newStdoutConsumer(w io.Writer) *stdoutConsumer {
	return &stdoutConsumer{enc: json.NewEncoder(w)}
}

func (c *stdoutConsumer) OnResult(res pipeline.Result) {
	line := utteranceLine{
		Type:         "utterance",
		Original:     res.Original,
		SourceLang:   res.SourceLang,
		Translations: make([]translationLine, 0, len(res.Translations)),
	}
	for _, tr := range res.Translations {
		line.Translations = append(line.Translations, translationLine{Lang: tr.Lang, Text: tr.Text})
	}
	c.write(line)
}

func (c *stdoutConsumer) OnError(err error) {
	c.write(errorLine{Type: "error", Message: err.Error()})
}

func (c *stdoutConsumer) write(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(v); err != nil {
		slog.Warn("write output line", "error", err)
	}
}
