package weather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nobletooth/hitcache/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves forecasts from a map and records the cities it was asked for.
type fakeSource struct {
	mux       sync.Mutex
	forecasts map[string]Forecast
	fetched   []string
}

func (s *fakeSource) Fetch(_ context.Context, city string) (Forecast, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.fetched = append(s.fetched, city)
	forecast, found := s.forecasts[city]
	if !found {
		return Forecast{}, ErrCityNotFound
	}
	return forecast, nil
}

func newTestService(t *testing.T, source Source) *Service {
	t.Helper()
	layer, err := cache.NewHitCounting(cache.Config[Forecast]{Enabled: true, TTL: time.Minute, MaxSize: 10})
	require.NoError(t, err)
	return NewService(source, layer)
}

func TestService_Forecast(t *testing.T) {
	source := &fakeSource{forecasts: map[string]Forecast{"berlin": berlin}}
	service := newTestService(t, source)

	for _, city := range []string{"berlin", "Berlin", "  BERLIN "} {
		got, err := service.Forecast(context.Background(), city)
		require.NoError(t, err)
		assert.Equal(t, berlin, got)
	}
	assert.Equal(t, []string{"berlin"}, source.fetched, "Expected spellings of one city to share a cache entry")
	assert.Equal(t, 1, service.CachedEntries())
}

func TestService_NotFoundIsNotCached(t *testing.T) {
	source := &fakeSource{forecasts: map[string]Forecast{}}
	service := newTestService(t, source)
	for range 2 {
		_, err := service.Forecast(context.Background(), "atlantis")
		assert.ErrorIs(t, err, ErrCityNotFound)
	}
	assert.Equal(t, []string{"atlantis", "atlantis"}, source.fetched)
	assert.Equal(t, 0, service.CachedEntries())
}

func TestService_InvalidCity(t *testing.T) {
	source := &fakeSource{}
	service := newTestService(t, source)
	for _, city := range []string{"", "   ", string(make([]byte, 200))} {
		_, err := service.Forecast(context.Background(), city)
		assert.True(t, errors.Is(err, ErrInvalidCity), "Expected invalid city error for %q, got %v", city, err)
	}
	assert.Empty(t, source.fetched)
}

func TestService_Invalidate(t *testing.T) {
	source := &fakeSource{forecasts: map[string]Forecast{"berlin": berlin}}
	service := newTestService(t, source)
	_, err := service.Forecast(context.Background(), "berlin")
	require.NoError(t, err)
	service.Invalidate()
	assert.Equal(t, 0, service.CachedEntries())
	_, err = service.Forecast(context.Background(), "berlin")
	require.NoError(t, err)
	assert.Len(t, source.fetched, 2)
}
