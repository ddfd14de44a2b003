// Package observe provides observability primitives for the bargein
// arbitration core: OpenTelemetry metrics, tracing helpers, and structured
// logging glue.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so counters can be scraped
// from the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bargein metrics.
const meterName = "github.com/openvoicekit/bargein"

// Metrics holds all OpenTelemetry metric instruments for the arbitration
// core. All fields are safe for concurrent use — the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// DecisionDuration tracks the latency of a single filter decision.
	// The arbitration budget is well under 100 ms; this histogram is how
	// regressions surface.
	DecisionDuration metric.Float64Histogram

	// Resolutions counts terminal interruption resolutions. Use with
	// attributes: attribute.String("outcome", ...), attribute.String("reason", ...)
	Resolutions metric.Int64Counter

	// FeedDrops counts events dropped by the websocket feed because a
	// subscriber could not keep up.
	FeedDrops metric.Int64Counter

	// PendingInterruptions tracks the current size of the pending store.
	PendingInterruptions metric.Int64Gauge
}

// decisionBuckets defines histogram bucket boundaries (in seconds) sized for
// a sub-millisecond decision path with a 100 ms budget.
var decisionBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DecisionDuration, err = m.Float64Histogram("bargein.decision.duration",
		metric.WithDescription("Latency of a single interruption filter decision."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decisionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Resolutions, err = m.Int64Counter("bargein.interruption.resolutions",
		metric.WithDescription("Terminal interruption resolutions by outcome and reason."),
	); err != nil {
		return nil, err
	}
	if met.FeedDrops, err = m.Int64Counter("bargein.eventfeed.drops",
		metric.WithDescription("Events dropped because a feed subscriber was too slow."),
	); err != nil {
		return nil, err
	}
	if met.PendingInterruptions, err = m.Int64Gauge("bargein.interruption.pending",
		metric.WithDescription("Number of interruptions currently awaiting resolution."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// ObserveDecision records the latency of one filter decision.
func (m *Metrics) ObserveDecision(d time.Duration) {
	m.DecisionDuration.Record(context.Background(), d.Seconds())
}

// RecordResolution records a terminal resolution with the standard
// attribute set.
func (m *Metrics) RecordResolution(outcome, reason string) {
	m.Resolutions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("reason", reason),
		),
	)
}

// RecordFeedDrop records one dropped feed event.
func (m *Metrics) RecordFeedDrop() {
	m.FeedDrops.Add(context.Background(), 1)
}

// SetPendingInterruptions records the current pending-store size.
func (m *Metrics) SetPendingInterruptions(n int) {
	m.PendingInterruptions.Record(context.Background(), int64(n))
}
