// Package observe provides the application's observability primitives:
// OpenTelemetry metric instruments for the matching and resolution pipeline,
// plus a meter provider wired to a Prometheus exporter bridge.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/Herselfta/ludiglot"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// MatchDuration tracks end-to-end text-match latency per line batch.
	MatchDuration metric.Float64Histogram

	// SearchCacheHits and SearchCacheMisses count memo-map outcomes in the
	// indexed search engine.
	SearchCacheHits   metric.Int64Counter
	SearchCacheMisses metric.Int64Counter

	// MatchOutcomes counts match results. Use with attribute:
	//   attribute.String("outcome", "single"|"multi"|"mixed"|"none")
	MatchOutcomes metric.Int64Counter

	// ResolveOutcomes counts audio resolutions. Use with attribute:
	//   attribute.String("source", "cache"|"wem"|"bnk"|"unknown"|"none")
	ResolveOutcomes metric.Int64Counter

	// CacheEvictions counts artifacts deleted by the cache size cap.
	CacheEvictions metric.Int64Counter

	// InventoryRebuilds counts resource-inventory index rebuilds.
	InventoryRebuilds metric.Int64Counter

	// MaterializeDuration tracks decode-tool invocation latency.
	MaterializeDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-capture matching and for decode-tool invocations.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MatchDuration, err = m.Float64Histogram("ludiglot.match.duration",
		metric.WithDescription("Latency of one text-match pass over a line batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MaterializeDuration, err = m.Float64Histogram("ludiglot.materialize.duration",
		metric.WithDescription("Latency of decode-tool invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchCacheHits, err = m.Int64Counter("ludiglot.search.cache.hits",
		metric.WithDescription("Search memo-map hits."),
	); err != nil {
		return nil, err
	}
	if met.SearchCacheMisses, err = m.Int64Counter("ludiglot.search.cache.misses",
		metric.WithDescription("Search memo-map misses."),
	); err != nil {
		return nil, err
	}
	if met.MatchOutcomes, err = m.Int64Counter("ludiglot.match.outcomes",
		metric.WithDescription("Match results by outcome kind."),
	); err != nil {
		return nil, err
	}
	if met.ResolveOutcomes, err = m.Int64Counter("ludiglot.resolve.outcomes",
		metric.WithDescription("Audio resolutions by source kind."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("ludiglot.cache.evictions",
		metric.WithDescription("Cache artifacts deleted by the size cap."),
	); err != nil {
		return nil, err
	}
	if met.InventoryRebuilds, err = m.Int64Counter("ludiglot.inventory.rebuilds",
		metric.WithDescription("Resource-inventory index rebuilds."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns a process-wide [Metrics] instance backed by the
// global meter provider. Instruments are created lazily on first call.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}

// RecordMatchOutcome counts one match result by outcome kind.
func (m *Metrics) RecordMatchOutcome(ctx context.Context, outcome string) {
	m.MatchOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordResolveOutcome counts one audio resolution by source kind.
func (m *Metrics) RecordResolveOutcome(ctx context.Context, source string) {
	m.ResolveOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
