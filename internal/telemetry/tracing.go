package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies plate's spans.
const TracerName = "github.com/hpungsan/plate"

// Tracer wraps an OpenTelemetry tracer with job-specific spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses tp, or the global provider when tp is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartJob starts a span around one worker run.
func (t *Tracer) StartJob(ctx context.Context, kind, id string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "plate.job."+kind, trace.WithAttributes(
		attribute.String("job.kind", kind),
		attribute.String("job.id", id),
	))
}

// StartModelCall starts a span around the external model call.
func (t *Tracer) StartModelCall(ctx context.Context, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "plate.model.call", trace.WithAttributes(
		attribute.String("llm.provider", provider),
	), trace.WithSpanKind(trace.SpanKindClient))
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
