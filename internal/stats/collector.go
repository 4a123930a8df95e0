// Package stats provides a unified interface for collecting cache metrics.
package stats

// Metric names used throughout the library.
const (
	// Cache manager metrics.
	MetricQueries     = "semcache_queries_total"
	MetricHits        = "semcache_hits_total"
	MetricSimilarHits = "semcache_similar_hits_total"
	MetricMisses      = "semcache_misses_total"
	MetricEvictions   = "semcache_evictions_total"
	MetricExpirations = "semcache_expirations_total"
	MetricRebuilds    = "semcache_index_rebuilds_total"
	MetricEntries     = "semcache_entries"
	MetricBuckets     = "semcache_lsh_buckets"

	// Coalescer metrics.
	MetricComputations = "semcache_upstream_computations_total"
	MetricCoalesced    = "semcache_coalesced_requests_total"

	// Latency metrics.
	MetricGetSeconds     = "semcache_get_duration_seconds"
	MetricComputeSeconds = "semcache_compute_duration_seconds"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
