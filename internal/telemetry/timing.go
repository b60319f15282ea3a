package telemetry

import (
	"context"

	servertiming "github.com/mitchellh/go-server-timing"
)

// TimingMetric wraps a Server-Timing metric; the zero value is a no-op.
type TimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *TimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartTiming starts a Server-Timing metric if the request carries timing state.
func StartTiming(ctx context.Context, name string) *TimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &TimingMetric{}
	}
	return &TimingMetric{metric: timing.NewMetric(name).Start()}
}
