package aside

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nobletooth/hitcache/pkg/cache"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeClock lets tests expire entries without sleeping.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// newTestAside builds an Aside over a single hit-counting cache.
func newTestAside(t *testing.T, clock cache.Clock, maxSize int) *Aside[string] {
	t.Helper()
	layer, err := cache.NewHitCounting(cache.Config[string]{
		Enabled: true, TTL: time.Minute, MaxSize: maxSize, Clock: clock, OnEvict: CountEviction[string],
	})
	require.NoError(t, err)
	return New[string](layer)
}

// countingLoader returns a loader that yields value and counts its calls.
func countingLoader(value string, calls *atomic.Int32) LoaderFunc[string] {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestAside_LoadsOnMissThenHits(t *testing.T) {
	a := newTestAside(t, nil, 10)
	var calls atomic.Int32
	missesBefore := testutil.ToFloat64(lookups.WithLabelValues("miss"))
	hitsBefore := testutil.ToFloat64(lookups.WithLabelValues("hit"))

	got, err := a.Get(context.Background(), "k", countingLoader("v", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	got, err = a.Get(context.Background(), "k", countingLoader("other", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v", got, "Expected the cached value on the second lookup")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, a.Size())
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("miss"))-missesBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("hit"))-hitsBefore)
}

func TestAside_ReloadsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	a := newTestAside(t, clock, 10)
	var calls atomic.Int32
	expiredBefore := testutil.ToFloat64(lookups.WithLabelValues("expired"))

	_, err := a.Get(context.Background(), "k", countingLoader("v1", &calls))
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Minute + time.Second)
	got, err := a.Get(context.Background(), "k", countingLoader("v2", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("expired"))-expiredBefore)
}

func TestAside_LoaderErrorIsNotCached(t *testing.T) {
	a := newTestAside(t, nil, 10)
	loadErr := errors.New("source unavailable")
	errorsBefore := testutil.ToFloat64(loads.WithLabelValues("error"))

	_, err := a.Get(context.Background(), "k", func(context.Context) (string, error) { return "", loadErr })
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, 0, a.Size())
	assert.Equal(t, 1.0, testutil.ToFloat64(loads.WithLabelValues("error"))-errorsBefore)

	var calls atomic.Int32
	got, err := a.Get(context.Background(), "k", countingLoader("v", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAside_SetFailureDoesNotFailLookup(t *testing.T) {
	a := newTestAside(t, nil, 0 /*maxSize*/) // Every set fails with a full cache error.
	var calls atomic.Int32
	failuresBefore := testutil.ToFloat64(setFailures)

	for range 2 {
		got, err := a.Get(context.Background(), "k", countingLoader("v", &calls))
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	}
	assert.Equal(t, int32(2), calls.Load(), "Expected every lookup to load since nothing could be cached")
	assert.Equal(t, 2.0, testutil.ToFloat64(setFailures)-failuresBefore)
}

func TestAside_CountsEvictions(t *testing.T) {
	a := newTestAside(t, nil, 1)
	var calls atomic.Int32
	evictionsBefore := testutil.ToFloat64(evictions)
	for _, key := range []string{"a", "b", "c"} {
		_, err := a.Get(context.Background(), key, countingLoader(key, &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(evictions)-evictionsBefore)
	assert.Equal(t, 1, a.Size())
}

func TestAside_CountsDistinctKeys(t *testing.T) {
	a := newTestAside(t, nil, 10)
	var calls atomic.Int32
	distinctBefore := testutil.ToFloat64(distinctKeys)
	for _, key := range []string{"a", "b", "a", "c", "b"} {
		_, err := a.Get(context.Background(), key, countingLoader(key, &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(distinctKeys)-distinctBefore)
}

func TestAside_Invalidate(t *testing.T) {
	a := newTestAside(t, nil, 10)
	var calls atomic.Int32
	_, err := a.Get(context.Background(), "k", countingLoader("v", &calls))
	require.NoError(t, err)
	a.Invalidate()
	assert.Equal(t, 0, a.Size())
	_, err = a.Get(context.Background(), "k", countingLoader("v", &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAside_ConcurrentMissesShareOneLoad(t *testing.T) {
	a := newTestAside(t, nil, 10)
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.Get(context.Background(), "k", load)
			assert.NoError(t, err)
			results[i] = got
		}()
	}
	time.Sleep(50 * time.Millisecond) // Let every caller join the in-flight load.
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, got := range results {
		assert.Equal(t, "v", got)
	}
}

func TestAside_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prevProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prevProvider) })

	a := newTestAside(t, nil, 10)
	var calls atomic.Int32
	for range 2 {
		_, err := a.Get(context.Background(), "k", countingLoader("v", &calls))
		require.NoError(t, err)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	var results []string
	for _, span := range spans {
		assert.Equal(t, "aside.Get", span.Name())
		assert.Contains(t, span.Attributes(), attribute.String("cache.key", "k"))
		for _, attr := range span.Attributes() {
			if attr.Key == "cache.result" {
				results = append(results, attr.Value.AsString())
			}
		}
	}
	assert.Equal(t, []string{"miss", "hit"}, results)
}

func TestAside_CancelledCallerDoesNotFailOthers(t *testing.T) {
	a := newTestAside(t, nil, 10)
	started, release := make(chan struct{}), make(chan struct{})
	var loadCtxErr error
	load := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		loadCtxErr = ctx.Err()
		return "v", nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.Get(firstCtx, "k", load)
		firstErr <- err
	}()
	<-started

	type lookup struct {
		value string
		err   error
	}
	second := make(chan lookup, 1)
	go func() {
		got, err := a.Get(context.Background(), "k", load)
		second <- lookup{value: got, err: err}
	}()
	time.Sleep(50 * time.Millisecond) // Let the second caller join the in-flight load.

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled, "Expected the cancelled caller to stop waiting")
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the cancelled caller to return before the load finished")
	}

	close(release)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, "v", got.value)
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the second caller to get the loaded value")
	}
	assert.NoError(t, loadCtxErr, "Expected the shared load to ignore the first caller's cancellation")
	assert.Equal(t, 1, a.Size(), "Expected the loaded value to be cached")
}
