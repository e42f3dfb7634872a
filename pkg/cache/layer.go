// Hitcache keeps recently fetched values in memory so callers can skip a round trip to their source of truth.
// This module provides an interface on caching, making single shard cache
// and multi shard caches have the same API.

package cache

// Layer defines the interface for a string-keyed cache holding values of a single type. Every method is an atomic
// state transition with respect to the other methods of the same shard.
type Layer[V any] interface {
	// Get returns the value stored for key, or a *MissError / *ExpiredError when the caller should load it instead.
	Get(key string) (V, error)
	// Set stores value for key, evicting another entry if the cache is at capacity.
	Set(key string, value V) error
	Clear()         // Removes all items from the cache.
	Size() int      // Number of stored entries; includes expired entries that were not read yet.
	Keys() []string // Returns the keys of the live (non-expired) entries.
}
