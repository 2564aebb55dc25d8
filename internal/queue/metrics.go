package queue

import (
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"repair-fund-audit/internal/telemetry"
)

const instrumentationName = "repair-fund-audit/internal/queue"

var (
	metricsOnce  sync.Once
	queueMetrics struct {
		fetchDuration metric.Float64Histogram
		decisions     metric.Int64Counter
	}
)

// initMetrics falls back to no-op instruments if the meter rejects one.
func initMetrics() {
	m := telemetry.Meter(instrumentationName)

	h, err := m.Float64Histogram("auditdesk.detail.fetch.duration",
		metric.WithDescription("Detail loader latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		h = noop.Float64Histogram{}
	}
	queueMetrics.fetchDuration = h

	c, err := m.Int64Counter("auditdesk.decisions",
		metric.WithDescription("Submitted audit decisions by result"),
	)
	if err != nil {
		c = noop.Int64Counter{}
	}
	queueMetrics.decisions = c
}
