package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope under which all voicepipe spans
// are created.
const tracerName = "github.com/FusionCrew/voicepipe"

// Tracer returns the voicepipe tracer from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan begins a span named name on the voicepipe tracer. The caller
// owns the returned span and must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the hex trace ID of the span active in ctx, or the
// empty string when there is none. The trace ID doubles as the correlation
// identifier surfaced in the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] with trace_id and span_id
// attributes attached when ctx carries an active span, so log lines emitted
// while processing an utterance can be joined with its trace.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		logger = logger.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return logger
}
