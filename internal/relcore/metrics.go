package relcore

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/relgraph/relgraph/internal/teltry"
)

// coreMetrics holds the OTel instruments for cache rebuild and event
// dispatch counts, registered against the global (possibly no-op) provider
// at package init time — the same shape as the teacher's doltMetrics.
var coreMetrics struct {
	downCacheBuilds      metric.Int64Counter
	upCacheBuilds        metric.Int64Counter
	reachableCacheBuilds metric.Int64Counter
	eventsEmitted        metric.Int64Counter
	observersNotified    metric.Int64Counter
}

func init() {
	m := teltry.Meter()
	coreMetrics.downCacheBuilds, _ = m.Int64Counter("relcore.down_cache.builds",
		metric.WithDescription("down-traversal cache entries rebuilt from scratch"))
	coreMetrics.upCacheBuilds, _ = m.Int64Counter("relcore.up_cache.builds",
		metric.WithDescription("up-traversal cache entries rebuilt from scratch"))
	coreMetrics.reachableCacheBuilds, _ = m.Int64Counter("relcore.reachable_cache.builds",
		metric.WithDescription("reachable-ids cache entries rebuilt from scratch"))
	coreMetrics.eventsEmitted, _ = m.Int64Counter("relcore.events.emitted",
		metric.WithDescription("events passed to emit(), counting wildcard fan-out"))
	coreMetrics.observersNotified, _ = m.Int64Counter("relcore.observers.notified",
		metric.WithDescription("observer callback invocations"))
}

func incr(c metric.Int64Counter, n int64) {
	if c != nil {
		c.Add(context.Background(), n)
	}
}
