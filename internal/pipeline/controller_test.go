package pipeline_test

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FusionCrew/voicepipe/internal/config"
	"github.com/FusionCrew/voicepipe/internal/pipeline"
	"github.com/FusionCrew/voicepipe/pkg/audio"
	"github.com/FusionCrew/voicepipe/pkg/provider/stt"
	sttmock "github.com/FusionCrew/voicepipe/pkg/provider/stt/mock"
	translatemock "github.com/FusionCrew/voicepipe/pkg/provider/translate/mock"
)

const testRate = 16000

// pcmTone returns ms milliseconds of constant-amplitude S16LE mono PCM. A
// constant signal has RMS equal to its amplitude, which makes gate math in
// tests exact.
func pcmTone(amp float64, ms int) []byte {
	n := testRate * ms / 1000
	v := int16(amp * 32767)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// concat joins PCM chunks into one capture buffer.
func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// collectConsumer gathers pipeline callbacks behind buffered channels.
type collectConsumer struct {
	results chan pipeline.Result
	errs    chan error
}

func newCollectConsumer() *collectConsumer {
	return &collectConsumer{
		results: make(chan pipeline.Result, 16),
		errs:    make(chan error, 16),
	}
}

func (c *collectConsumer) OnResult(res pipeline.Result) { c.results <- res }
func (c *collectConsumer) OnError(err error)            { c.errs <- err }

// waitResult blocks until a result arrives or the deadline passes.
func (c *collectConsumer) waitResult(t *testing.T, timeout time.Duration) pipeline.Result {
	t.Helper()
	select {
	case res := <-c.results:
		return res
	case err := <-c.errs:
		t.Fatalf("unexpected pipeline error: %v", err)
	case <-time.After(timeout):
		t.Fatal("timed out waiting for pipeline result")
	}
	return pipeline.Result{}
}

// assertQuiet verifies no callback fires within the window.
func (c *collectConsumer) assertQuiet(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case res := <-c.results:
		t.Fatalf("unexpected result: %+v", res)
	case err := <-c.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(window):
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Capture:  config.CaptureConfig{SampleRate: testRate},
		Pipeline: config.PipelineConfig{SampleRate: testRate, Workers: 2},
		Languages: config.LanguagesConfig{
			Source:  "en",
			Targets: []string{"de", "uk"},
		},
	}
}

// newController assembles a controller over a fake capture platform.
func newController(t *testing.T, pcm []byte, cfg *config.Config, transcriber stt.Provider, translator *translatemock.Provider) (*pipeline.Controller, *collectConsumer) {
	t.Helper()
	consumer := newCollectConsumer()
	ctrl, err := pipeline.New(pipeline.ControllerConfig{
		Platform:    audio.NewFakePlatform(pcm, testRate, false),
		Transcriber: transcriber,
		Translator:  translator,
		Consumer:    consumer,
		Config:      cfg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl, consumer
}

func TestController_TranscribesUtteranceAndTranslatesInOrder(t *testing.T) {
	// 1 s of speech, then enough silence to trip the default 700 ms pad.
	pcm := concat(pcmTone(0.05, 1000), pcmTone(0, 900))

	transcriber := &sttmock.Provider{Result: stt.Result{Text: "good morning"}}
	translator := &translatemock.Provider{Results: map[string]string{
		"de": "guten Morgen",
		"uk": "доброго ранку",
	}}

	ctrl, consumer := newController(t, pcm, testConfig(), transcriber, translator)
	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	res := consumer.waitResult(t, 3*time.Second)
	if res.Original != "good morning" {
		t.Errorf("Original = %q, want %q", res.Original, "good morning")
	}
	if res.SourceLang != "en" {
		t.Errorf("SourceLang = %q, want %q", res.SourceLang, "en")
	}
	if len(res.Translations) != 2 {
		t.Fatalf("len(Translations) = %d, want 2", len(res.Translations))
	}
	if res.Translations[0].Lang != "de" || res.Translations[0].Text != "guten Morgen" {
		t.Errorf("Translations[0] = %+v", res.Translations[0])
	}
	if res.Translations[1].Lang != "uk" || res.Translations[1].Text != "доброго ранку" {
		t.Errorf("Translations[1] = %+v", res.Translations[1])
	}
	if got := transcriber.CallCount(); got != 1 {
		t.Errorf("transcriber calls = %d, want 1", got)
	}
}

func TestController_SilenceNeverReachesTranscriber(t *testing.T) {
	pcm := pcmTone(0, 300)

	transcriber := &sttmock.Provider{Result: stt.Result{Text: "ghost"}}
	translator := &translatemock.Provider{}

	ctrl, consumer := newController(t, pcm, testConfig(), transcriber, translator)
	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	consumer.assertQuiet(t, 300*time.Millisecond)
	if got := transcriber.CallCount(); got != 0 {
		t.Errorf("transcriber calls = %d, want 0", got)
	}
}

func TestController_QualityGateRejectionSkipsTranscription(t *testing.T) {
	// 100 ms of speech padded out by 400 ms of silence: 500 ms total, voiced
	// fraction 0.2. Short AND mostly unvoiced, so the gate rejects it.
	pcm := concat(pcmTone(0.05, 100), pcmTone(0, 500))

	cfg := testConfig()
	cfg.Segmenter.PadMs = 400
	cfg.Segmenter.MinSpeechMs = 100

	transcriber := &sttmock.Provider{Result: stt.Result{Text: "noise"}}
	translator := &translatemock.Provider{}

	ctrl, consumer := newController(t, pcm, cfg, transcriber, translator)
	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	consumer.assertQuiet(t, 300*time.Millisecond)
	if got := transcriber.CallCount(); got != 0 {
		t.Errorf("transcriber calls = %d, want 0", got)
	}
}

func TestController_EmptyTranscriptIsSilentlyDropped(t *testing.T) {
	pcm := concat(pcmTone(0.05, 1000), pcmTone(0, 900))

	transcriber := &sttmock.Provider{Result: stt.Result{Text: ""}}
	translator := &translatemock.Provider{Results: map[string]string{"de": "x"}}

	ctrl, consumer := newController(t, pcm, testConfig(), transcriber, translator)
	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	// Wait for the transcription to have happened, then verify nothing was
	// delivered and no translation was attempted.
	deadline := time.Now().Add(2 * time.Second)
	for transcriber.CallCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transcriber was never called")
		}
		time.Sleep(10 * time.Millisecond)
	}
	consumer.assertQuiet(t, 300*time.Millisecond)
	if got := translator.CallCount(); got != 0 {
		t.Errorf("translator calls = %d, want 0", got)
	}
}

func TestController_NewUtteranceSupersedesInFlightTranscription(t *testing.T) {
	// Two utterances, replayed at real time so the first transcription is
	// already in flight when the second utterance finalizes. The first call
	// blocks until it is cancelled; the second must cancel it and deliver
	// alone.
	pcm := concat(
		pcmTone(0.05, 1000), pcmTone(0, 800),
		pcmTone(0.05, 1000), pcmTone(0, 900),
	)

	var calls atomic.Int32
	transcriber := &sttmock.Provider{
		Fn: func(ctx context.Context, _ stt.Request) (stt.Result, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return stt.Result{}, ctx.Err()
			}
			return stt.Result{Text: "second utterance"}, nil
		},
	}
	translator := &translatemock.Provider{Results: map[string]string{
		"de": "zweite Äußerung",
		"uk": "друге висловлювання",
	}}

	consumer := newCollectConsumer()
	ctrl, err := pipeline.New(pipeline.ControllerConfig{
		Platform:    audio.NewFakePlatform(pcm, testRate, true),
		Transcriber: transcriber,
		Translator:  translator,
		Consumer:    consumer,
		Config:      testConfig(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })

	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	res := consumer.waitResult(t, 8*time.Second)
	if res.Original != "second utterance" {
		t.Errorf("Original = %q, want %q", res.Original, "second utterance")
	}
	// The superseded utterance must not surface as an error or a result.
	consumer.assertQuiet(t, 300*time.Millisecond)
}

func TestController_DisableMakesLateResultsInert(t *testing.T) {
	pcm := concat(pcmTone(0.05, 1000), pcmTone(0, 900))

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once
	transcriber := &sttmock.Provider{
		// Ignores cancellation on purpose: the result arrives after the
		// session is gone and must be dropped by the generation check.
		Fn: func(_ context.Context, _ stt.Request) (stt.Result, error) {
			once.Do(started.Done)
			<-release
			return stt.Result{Text: "late"}, nil
		},
	}
	translator := &translatemock.Provider{}

	cfg := testConfig()
	cfg.Languages.Targets = nil

	consumer := newCollectConsumer()
	ctrl, err := pipeline.New(pipeline.ControllerConfig{
		Platform:    audio.NewFakePlatform(pcm, testRate, false),
		Transcriber: transcriber,
		Translator:  translator,
		Consumer:    consumer,
		Config:      cfg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })

	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	started.Wait()
	ctrl.Disable()
	close(release)

	consumer.assertQuiet(t, 300*time.Millisecond)
}

func TestController_EnableRestartsExistingSession(t *testing.T) {
	pcm := concat(pcmTone(0.05, 1000), pcmTone(0, 900))

	transcriber := &sttmock.Provider{Result: stt.Result{Text: "hello"}}
	translator := &translatemock.Provider{Results: map[string]string{"de": "hallo", "uk": "привіт"}}

	ctrl, consumer := newController(t, pcm, testConfig(), transcriber, translator)
	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	consumer.waitResult(t, 3*time.Second)

	// Re-enabling replays the fake buffer in a fresh session.
	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("second Enable: %v", err)
	}
	if !ctrl.Enabled() {
		t.Error("Enabled() = false after Enable")
	}
	res := consumer.waitResult(t, 3*time.Second)
	if res.Original != "hello" {
		t.Errorf("Original = %q, want %q", res.Original, "hello")
	}
}

func TestController_FailedTargetIsOmitted(t *testing.T) {
	pcm := concat(pcmTone(0.05, 1000), pcmTone(0, 900))

	transcriber := &sttmock.Provider{Result: stt.Result{Text: "hello"}}
	translator := &translatemock.Provider{
		Results: map[string]string{"de": "hallo", "uk": "привіт"},
		ErrFor:  map[string]error{"de": context.DeadlineExceeded},
	}

	ctrl, consumer := newController(t, pcm, testConfig(), transcriber, translator)
	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	res := consumer.waitResult(t, 3*time.Second)
	if len(res.Translations) != 1 {
		t.Fatalf("len(Translations) = %d, want 1", len(res.Translations))
	}
	if res.Translations[0].Lang != "uk" {
		t.Errorf("surviving target = %q, want %q", res.Translations[0].Lang, "uk")
	}
}

func TestController_ApplyHotReloadsTargets(t *testing.T) {
	pcm := concat(pcmTone(0.05, 1000), pcmTone(0, 900))

	transcriber := &sttmock.Provider{Result: stt.Result{Text: "hello"}}
	translator := &translatemock.Provider{Results: map[string]string{
		"de": "hallo", "uk": "привіт", "pl": "cześć",
	}}

	cfg := testConfig()
	ctrl, consumer := newController(t, pcm, cfg, transcriber, translator)

	newCfg := *cfg
	newCfg.Languages.Targets = []string{"pl"}
	if err := ctrl.Apply(&newCfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := ctrl.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	res := consumer.waitResult(t, 3*time.Second)
	if len(res.Translations) != 1 || res.Translations[0].Lang != "pl" {
		t.Errorf("Translations = %+v, want single pl entry", res.Translations)
	}
}

func TestController_DeviceSubstringMatchFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Device = "no such microphone"

	transcriber := &sttmock.Provider{}
	translator := &translatemock.Provider{}

	ctrl, _ := newController(t, pcmTone(0, 100), cfg, transcriber, translator)
	if err := ctrl.Enable(context.Background()); err == nil {
		t.Fatal("Enable should fail when no device matches")
	}
	if ctrl.Enabled() {
		t.Error("Enabled() = true after failed Enable")
	}
}
