package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// spanContext starts a span on a throwaway provider and returns a context
// carrying it.
func spanContext(t *testing.T) context.Context {
	t.Helper()
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "helper-span")
	t.Cleanup(func() { span.End() })
	return ctx
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID with no span = %q, want empty", got)
	}

	id := CorrelationID(spanContext(t))
	if len(id) != 32 {
		t.Fatalf("correlation ID %q has length %d, want 32 hex chars", id, len(id))
	}
	if strings.Trim(id, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q is not lowercase hex", id)
	}
}

func TestStartSpanUsesGlobalProvider(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "pipeline.utterance")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan produced a context without a trace ID")
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d exported spans, want 1", len(spans))
	}
	if spans[0].Name != "pipeline.utterance" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "pipeline.utterance")
	}
	if spans[0].InstrumentationScope.Name != tracerName {
		t.Errorf("instrumentation scope = %q, want %q", spans[0].InstrumentationScope.Name, tracerName)
	}
}

func TestLoggerAttachesTraceAttributes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Logger(spanContext(t)).Info("with span")
	if out := buf.String(); !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing trace attributes: %s", out)
	}

	buf.Reset()
	Logger(context.Background()).Info("without span")
	if out := buf.String(); strings.Contains(out, "trace_id") {
		t.Errorf("log line without a span should carry no trace_id: %s", out)
	}
}
