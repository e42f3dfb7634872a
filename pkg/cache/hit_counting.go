// This module implements an expirable hit-counting cache.
// Eviction Policy (least hits since insertion):
// Every entry counts the successful reads it served since it was stored. When the cache is full and a new key is
// being added, the entry with the lowest count is evicted. Ties go to the entry that was inserted first. This is not
// LRU: counts never decay, so a freshly stored entry (zero hits) is always the first candidate for eviction.
//
// Expiration Policy (lazy TTL):
// Every entry lives for the same TTL. Expiration is only checked when an entry is read; an expired entry is removed
// by the read that found it. There is no background sweep, so Size also counts expired entries that were never read.

package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/nobletooth/hitcache/pkg/utils"
)

// Clock tells the cache what time it is. Tests use it to move time forward without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{} // Implements Clock.

func (systemClock) Now() time.Time { return time.Now() }

// Config holds the construction parameters of HitCounting. They are fixed for the lifetime of the cache.
type Config[V any] struct {
	// Enabled turns Set into a no-op when false; Get still reads whatever is stored, which is normally nothing.
	Enabled bool
	TTL     time.Duration // Lifetime of every entry; must be positive.
	MaxSize int           // Maximum number of entries; zero makes every Set of an enabled cache fail with FullError.
	Clock   Clock         // Defaults to the wall clock.
	// OnEvict is an optional callback executed when Set evicts an entry to make room. It runs while the cache lock is
	// held, so it must not be calling any of the cache methods to avoid deadlocks.
	OnEvict func(key string, value V)
}

// hitCountingEntry represents a single stored value together with its lifecycle metadata.
type hitCountingEntry[V any] struct {
	key         string
	value       V
	cachedAt    time.Time
	expiresAt   time.Time // Always cachedAt + ttl.
	accessCount int       // Successful reads since the entry was stored; the eviction ranking key.
}

func (e *hitCountingEntry[V]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// HitCounting is a thread-safe, fixed-capacity, in-memory cache that evicts the least read entry and lazily expires
// entries after a fixed TTL. Every method runs as a single critical section.
type HitCounting[V any] struct {
	enabled bool
	ttl     time.Duration
	maxSize int
	clock   Clock
	onEvict func(string, V)
	// index provides lookup for an entry by its key.
	index map[string]*listNode[*hitCountingEntry[V]]
	// entries keeps the insertion order, which breaks ties in the eviction scan.
	entries *entryList[*hitCountingEntry[V]]
	mux     sync.Mutex
}

var _ Layer[int] = (*HitCounting[int])(nil)

// NewHitCounting is the constructor for HitCounting.
func NewHitCounting[V any](cfg Config[V]) (*HitCounting[V], error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("expected a positive cache ttl, got %s", cfg.TTL)
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("expected a non-negative cache max size, got %d", cfg.MaxSize)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &HitCounting[V]{
		enabled: cfg.Enabled,
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		clock:   clock,
		onEvict: cfg.OnEvict,
		index:   make(map[string]*listNode[*hitCountingEntry[V]], cfg.MaxSize),
		entries: new(entryList[*hitCountingEntry[V]]),
	}, nil
}

// Get returns the value stored for key and counts the read towards the entry's eviction rank.
// It returns a *MissError if the key is not stored, and an *ExpiredError (after removing the entry) if its TTL elapsed.
func (c *HitCounting[V]) Get(key string) (V, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	node, exists := c.index[key]
	if !exists {
		return *new(V), &MissError{Key: key}
	}
	entry := node.Value
	if entry.isExpired(c.clock.Now()) {
		c.removeLocked(node)
		return *new(V), &ExpiredError{Key: key, CachedAt: entry.cachedAt, ExpiresAt: entry.expiresAt}
	}
	entry.accessCount++
	return entry.value, nil
}

// Set stores value for key with a fresh TTL and a zero access count. Overwriting a key keeps its insertion order.
// When the cache is full and key is new, the least read entry is evicted first. It returns a *FullError if there was
// nothing to evict. Set on a disabled cache does nothing.
func (c *HitCounting[V]) Set(key string, value V) error {
	if !c.enabled {
		return nil
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	node, exists := c.index[key]
	if !exists && len(c.index) >= c.maxSize {
		if err := c.evictLocked(); err != nil {
			return err
		}
	}

	now := c.clock.Now()
	if exists { // Overwrite in place.
		entry := node.Value
		entry.value = value
		entry.cachedAt = now
		entry.expiresAt = now.Add(c.ttl)
		entry.accessCount = 0
		return nil
	}
	c.index[key] = c.entries.PushBack(&hitCountingEntry[V]{
		key:       key,
		value:     value,
		cachedAt:  now,
		expiresAt: now.Add(c.ttl),
	})
	return nil
}

// evictLocked removes the entry with the lowest access count. NOTE: Caller should acquire lock.
func (c *HitCounting[V]) evictLocked() error {
	var victim *listNode[*hitCountingEntry[V]]
	for node := range c.entries.All() {
		// Strictly less, so the oldest entry wins ties.
		if victim == nil || node.Value.accessCount < victim.Value.accessCount {
			victim = node
		}
	}
	if victim == nil {
		if c.maxSize > 0 { // A full cache with a positive capacity always holds something to evict.
			utils.RaiseInvariant("hit_counting", "full_without_victim", "Full cache found nothing to evict.",
				"maxSize", c.maxSize, "indexSize", len(c.index), "listSize", c.entries.Len())
		}
		return &FullError{MaxSize: c.maxSize, CurrentSize: len(c.index)}
	}
	c.removeLocked(victim)
	if c.onEvict != nil {
		c.onEvict(victim.Value.key, victim.Value.value)
	}
	return nil
}

// removeLocked drops node from both the index and the insertion list. NOTE: Caller should acquire lock.
func (c *HitCounting[V]) removeLocked(node *listNode[*hitCountingEntry[V]]) {
	delete(c.index, node.Value.key)
	c.entries.Remove(node)
}

// Clear removes every entry unconditionally.
func (c *HitCounting[V]) Clear() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.index = make(map[string]*listNode[*hitCountingEntry[V]], c.maxSize)
	c.entries = new(entryList[*hitCountingEntry[V]])
}

// Size returns the number of stored entries, including the expired ones that were not read since they expired.
func (c *HitCounting[V]) Size() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.index)
}

// Keys returns the keys of non-expired entries in insertion order. Unlike Get, it neither counts reads nor removes
// expired entries.
func (c *HitCounting[V]) Keys() []string {
	c.mux.Lock()
	defer c.mux.Unlock()

	now := c.clock.Now()
	keys := make([]string, 0, len(c.index))
	for node := range c.entries.All() {
		if !node.Value.isExpired(now) {
			keys = append(keys, node.Value.key)
		}
	}
	return keys
}
