// The process-wide cache is configured through flags. Sharding is off by default because it makes capacity and
// eviction per shard; enable it only when lock contention matters more than the exact eviction order.

package cache

import (
	"flag"
	"fmt"
	"time"
)

var (
	cacheEnabled = flag.Bool("cache_enabled", true, "Enable the cache; a disabled cache ignores every set.")
	cacheTtl     = flag.Duration("cache_ttl", 5*time.Minute, "The lifetime of every cache entry; must be positive.")
	cacheMaxSize = flag.Int("cache_max_size", 1_000,
		"The maximum number of entries to keep in the cache; 0 makes every set fail with a cache full error.")
	cacheShardCount = flag.Int("cache_shard_count", 1,
		"The number of cache shards; values above 1 split the max size evenly and evict per shard.")
)

// FromFlags builds a cache layer according to the configured flags. onEvict may be nil.
func FromFlags[V any](onEvict func(key string, value V)) (Layer[V], error) {
	newShard := func(maxSize int) (*HitCounting[V], error) {
		return NewHitCounting(Config[V]{
			Enabled: *cacheEnabled,
			TTL:     *cacheTtl,
			MaxSize: maxSize,
			OnEvict: onEvict,
		})
	}

	switch shardCount := *cacheShardCount; {
	case shardCount == 1: // Single shard cache.
		hitCounting, err := newShard(*cacheMaxSize)
		if err != nil {
			return nil, err
		}
		return hitCounting, nil
	case shardCount > 1: // Sharded cache.
		shardMaxSize := *cacheMaxSize / shardCount
		if *cacheMaxSize > 0 && shardMaxSize == 0 {
			shardMaxSize = 1
		}
		sharded, err := NewSharded(shardCount, func(int) (Layer[V], error) {
			shard, err := newShard(shardMaxSize)
			if err != nil {
				return nil, err
			}
			return shard, nil
		})
		if err != nil {
			return nil, err
		}
		return sharded, nil
	default:
		return nil, fmt.Errorf("expected a positive cache shard count, got %d", shardCount)
	}
}
