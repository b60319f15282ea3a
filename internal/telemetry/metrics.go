package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName identifies plate's instruments.
const MeterName = "github.com/hpungsan/plate"

// Metrics holds the pipeline's metric instruments.
type Metrics struct {
	jobsSubmitted metric.Int64Counter
	jobsFinished  metric.Int64Counter
	jobsReaped    metric.Int64Counter
	modelLatency  metric.Float64Histogram
}

// NewMetrics creates instruments on mp, or on the global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	var err error

	m.jobsSubmitted, err = meter.Int64Counter(
		"plate.jobs.submitted",
		metric.WithDescription("Jobs accepted by submission"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobsSubmitted, _ = meter.Int64Counter("plate.jobs.submitted")
	}

	m.jobsFinished, err = meter.Int64Counter(
		"plate.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal state"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobsFinished, _ = meter.Int64Counter("plate.jobs.finished")
	}

	m.jobsReaped, err = meter.Int64Counter(
		"plate.jobs.reaped",
		metric.WithDescription("Pending jobs failed by the stale-job reaper"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobsReaped, _ = meter.Int64Counter("plate.jobs.reaped")
	}

	m.modelLatency, err = meter.Float64Histogram(
		"plate.model.duration",
		metric.WithDescription("Duration of external model calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.modelLatency, _ = meter.Float64Histogram("plate.model.duration")
	}

	return m
}

// RecordSubmitted counts an accepted submission of the given kind (image, text, fix).
func (m *Metrics) RecordSubmitted(ctx context.Context, kind string) {
	m.jobsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("job.kind", kind)))
}

// RecordFinished counts a terminal transition.
func (m *Metrics) RecordFinished(ctx context.Context, kind, status, failure string) {
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job.kind", kind),
		attribute.String("job.status", status),
		attribute.String("job.failure", failure),
	))
}

// RecordReaped counts jobs failed as stale.
func (m *Metrics) RecordReaped(ctx context.Context, kind string, n int) {
	m.jobsReaped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("job.kind", kind)))
}

// RecordModelCall records model latency and outcome.
func (m *Metrics) RecordModelCall(ctx context.Context, provider string, d time.Duration, ok bool) {
	m.modelLatency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.Bool("llm.ok", ok),
	))
}
