// This module implements cache sharding which distributes keys uniformly across cache shards. Since each cache shard
// serializes its operations behind one mutex, sharding spreads the lock contention: goroutines only lock the shard
// their key belongs to and don't block goroutines working on keys of other shards.
// The price is that capacity and eviction become per shard: a full shard evicts its own least read entry even when a
// less read entry lives in another shard. Clear is atomic per shard, not across shards.

package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Sharded is a cache layer that distributes keys across multiple underlying cache layers (shards).
type Sharded[V any] struct { // Implements Layer.
	shards []Layer[V]
}

var _ Layer[int] = (*Sharded[int])(nil)

// NewSharded is the constructor for Sharded. It calls newShard once per shard index to create the shards.
func NewSharded[V any](shardCount int, newShard func(shardIdx int) (Layer[V], error)) (*Sharded[V], error) {
	if shardCount <= 0 {
		return nil, fmt.Errorf("expected a positive shard count, got %d", shardCount)
	}
	sharded := &Sharded[V]{shards: make([]Layer[V], shardCount)}
	for i := range shardCount {
		shard, err := newShard(i)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache shard %d: %w", i, err)
		}
		sharded.shards[i] = shard
	}
	return sharded, nil
}

// getShard determines which shard a given key belongs to.
func (s *Sharded[V]) getShard(key string) Layer[V] {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Get finds the appropriate shard for the key and retrieves the value from it.
func (s *Sharded[V]) Get(key string) (V, error) {
	return s.getShard(key).Get(key)
}

// Set finds the appropriate shard for the key and stores the value in it.
func (s *Sharded[V]) Set(key string, value V) error {
	return s.getShard(key).Set(key, value)
}

// Clear clears every shard.
func (s *Sharded[V]) Clear() {
	for _, shard := range s.shards {
		shard.Clear()
	}
}

// Size sums the sizes of all shards.
func (s *Sharded[V]) Size() int {
	size := 0
	for _, shard := range s.shards {
		size += shard.Size()
	}
	return size
}

// Keys aggregates the live keys from all shards into a single slice.
func (s *Sharded[V]) Keys() []string {
	keys := make([]string, 0)
	for _, shard := range s.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}
