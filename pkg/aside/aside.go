// Package aside implements the cache-aside pattern on top of a cache layer: a lookup that misses (or finds an expired
// entry) loads the value from the source of truth and stores it back in the cache.
// Storing is best effort: a cache that refuses the value (e.g. because it is full) never fails the lookup.
package aside

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/nobletooth/hitcache/pkg/cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/nobletooth/hitcache/pkg/aside"

var bloomCapacity = flag.Uint("aside_bloom_capacity", 100_000,
	"The expected number of distinct keys; sizes the bloom filter behind aside_distinct_keys_total.")

// LoaderFunc fetches the value of a key from the source of truth.
type LoaderFunc[V any] func(ctx context.Context) (V, error)

// Aside serves lookups from a cache layer and falls back to a loader on misses and expiries.
type Aside[V any] struct {
	layer cache.Layer[V]
	// inflight makes concurrent lookups of the same missing key share a single load.
	inflight singleflight.Group
	seenMux  sync.Mutex
	seen     *bloom.BloomFilter
}

// New is the constructor for Aside.
func New[V any](layer cache.Layer[V]) *Aside[V] {
	return &Aside[V]{
		layer: layer,
		seen:  bloom.NewWithEstimates(*bloomCapacity, 0.01 /*falsePositiveRate*/),
	}
}

// Get returns the cached value of key, or loads it with load and caches it. Misses and expiries are handled alike.
// Errors returned by load are wrapped and returned; they are never cached.
func (a *Aside[V]) Get(ctx context.Context, key string, load LoaderFunc[V]) (V, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "aside.Get", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()
	a.countDistinct(key)

	value, err := a.layer.Get(key)
	var result string
	switch {
	case err == nil:
		lookups.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.String("cache.result", "hit"))
		return value, nil
	case errors.Is(err, cache.ErrExpired):
		result = "expired"
	case errors.Is(err, cache.ErrMiss):
		result = "miss"
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache lookup failed")
		return *new(V), fmt.Errorf("failed to look up cache key %q: %w", key, err)
	}
	lookups.WithLabelValues(result).Inc()
	span.SetAttributes(attribute.String("cache.result", result))

	// The shared load outlives any single caller: it keeps the trace values of ctx but not its cancellation.
	loadCtx := context.WithoutCancel(ctx)
	loadResult := a.inflight.DoChan(key, func() (any, error) {
		loadedValue, err := load(loadCtx)
		if err != nil {
			loads.WithLabelValues("error").Inc()
			return nil, err
		}
		loads.WithLabelValues("ok").Inc()
		if err := a.layer.Set(key, loadedValue); err != nil {
			setFailures.Inc()
			slog.Warn("Failed to cache the loaded value.", "key", key, "error", err)
		}
		return loadedValue, nil
	})
	var loaded singleflight.Result
	select {
	case loaded = <-loadResult:
	case <-ctx.Done(): // Only this caller stops waiting; the load keeps serving the others.
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "caller gave up waiting")
		return *new(V), fmt.Errorf("stopped waiting for key %q: %w", key, ctx.Err())
	}
	span.SetAttributes(attribute.Bool("cache.shared_load", loaded.Shared))
	if loaded.Err != nil {
		span.RecordError(loaded.Err)
		span.SetStatus(codes.Error, "load failed")
		return *new(V), fmt.Errorf("failed to load key %q: %w", key, loaded.Err)
	}
	value, _ = loaded.Val.(V) // A nil interface value fails the assertion and leaves the zero value.
	return value, nil
}

// countDistinct counts key towards aside_distinct_keys_total the first time the bloom filter sees it.
func (a *Aside[V]) countDistinct(key string) {
	a.seenMux.Lock()
	defer a.seenMux.Unlock()
	if !a.seen.TestOrAddString(key) {
		distinctKeys.Inc()
	}
}

// Invalidate drops every cached entry.
func (a *Aside[V]) Invalidate() {
	a.layer.Clear()
}

// Size returns the number of entries held by the underlying cache.
func (a *Aside[V]) Size() int {
	return a.layer.Size()
}
