// Package observe provides observability primitives for Otoforge:
// OpenTelemetry metrics for the assembly pipeline and a provider setup with a
// Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Otoforge metrics.
const meterName = "github.com/kazenokoe/otoforge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// AlignDuration tracks forced-alignment latency per take.
	AlignDuration metric.Float64Histogram

	// SuggestionConfidence tracks the confidence of emitted oto parameter
	// suggestions.
	SuggestionConfidence metric.Float64Histogram

	// TakesProcessed counts takes that completed slicing and persistence.
	// Use with attribute.String("style", ...).
	TakesProcessed metric.Int64Counter

	// TakesSkipped counts takes skipped during a batch (too short, no viable
	// slice). Use with attribute.String("reason", ...).
	TakesSkipped metric.Int64Counter

	// TakesFailed counts takes that failed alignment or slicing.
	// Use with attribute.String("stage", ...).
	TakesFailed metric.Int64Counter

	// SlicesWritten counts persisted sample slices.
	SlicesWritten metric.Int64Counter

	// EntryConflicts counts duplicate (filename, alias) create attempts.
	EntryConflicts metric.Int64Counter

	// lockMapSize reports the current resource lock map entry count via a
	// callback registered with ObserveLockMapSize.
	lockMapSize metric.Int64ObservableGauge
	meter       metric.Meter
}

// alignLatencyBuckets defines histogram bucket boundaries (in seconds) sized
// for forced-alignment calls, which are much slower than local processing.
var alignLatencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// confidenceBuckets covers the [0, 1] suggestion confidence range.
var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.AlignDuration, err = m.Float64Histogram("otoforge.align.duration",
		metric.WithDescription("Latency of forced alignment per take."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(alignLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SuggestionConfidence, err = m.Float64Histogram("otoforge.suggestion.confidence",
		metric.WithDescription("Confidence of emitted oto parameter suggestions."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}

	if met.TakesProcessed, err = m.Int64Counter("otoforge.takes.processed",
		metric.WithDescription("Takes that completed slicing and persistence, by style."),
	); err != nil {
		return nil, err
	}
	if met.TakesSkipped, err = m.Int64Counter("otoforge.takes.skipped",
		metric.WithDescription("Takes skipped during a batch, by reason."),
	); err != nil {
		return nil, err
	}
	if met.TakesFailed, err = m.Int64Counter("otoforge.takes.failed",
		metric.WithDescription("Takes that failed alignment or slicing, by stage."),
	); err != nil {
		return nil, err
	}
	if met.SlicesWritten, err = m.Int64Counter("otoforge.slices.written",
		metric.WithDescription("Persisted sample slices."),
	); err != nil {
		return nil, err
	}
	if met.EntryConflicts, err = m.Int64Counter("otoforge.entries.conflicts",
		metric.WithDescription("Duplicate (filename, alias) create attempts."),
	); err != nil {
		return nil, err
	}

	if met.lockMapSize, err = m.Int64ObservableGauge("otoforge.lockmap.size",
		metric.WithDescription("Current resource lock map entry count."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveLockMapSize registers size as the source for the lock map gauge. The
// callback runs on every metric collection.
func (m *Metrics) ObserveLockMapSize(size func() int) (metric.Registration, error) {
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.lockMapSize, int64(size()))
		return nil
	}, m.lockMapSize)
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

// RecordTakeProcessed records a completed take with its recording style.
func (m *Metrics) RecordTakeProcessed(ctx context.Context, style string) {
	m.TakesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("style", style)),
	)
}

// RecordTakeSkipped records a skipped take with the skip reason.
func (m *Metrics) RecordTakeSkipped(ctx context.Context, reason string) {
	m.TakesSkipped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordTakeFailed records a failed take with the pipeline stage that failed.
func (m *Metrics) RecordTakeFailed(ctx context.Context, stage string) {
	m.TakesFailed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
