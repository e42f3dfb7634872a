package aside

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aside_lookups_total",
		Help: "Total number of cache-aside lookups.",
	}, []string{"result" /* hit | miss | expired */})
	loads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aside_loads_total",
		Help: "Total number of source of truth loads after a cache miss or expiry.",
	}, []string{"status" /* ok | error */})
	setFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aside_set_failures_total",
		Help: "Total number of loaded values that could not be stored in the cache.",
	})
	distinctKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aside_distinct_keys_total",
		Help: "Approximate number of distinct keys looked up; a bloom filter decides whether a key was seen before.",
	})
	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Total number of entries evicted to make room for new keys.",
	})
)

// CountEviction counts a capacity eviction. It is meant to be passed as the cache eviction callback.
func CountEviction[V any](string, V) {
	evictions.Inc()
}
