package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Herselfta/ludiglot/internal/observe"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider()
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.MatchDuration == nil || m.SearchCacheHits == nil || m.SearchCacheMisses == nil ||
		m.MatchOutcomes == nil || m.ResolveOutcomes == nil || m.CacheEvictions == nil ||
		m.InventoryRebuilds == nil || m.MaterializeDuration == nil {
		t.Fatal("NewMetrics returned a Metrics with nil instruments")
	}

	// Recording must not panic.
	ctx := context.Background()
	m.MatchDuration.Record(ctx, 0.012)
	m.RecordMatchOutcome(ctx, "single")
	m.RecordResolveOutcome(ctx, "cache")
	m.SearchCacheHits.Add(ctx, 3)
}
