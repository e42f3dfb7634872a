package weather

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nobletooth/hitcache/pkg/aside"
	"github.com/nobletooth/hitcache/pkg/cache"
	"github.com/pkg/errors"
)

// ErrInvalidCity is matched by errors returned for blank or overly long city names.
var ErrInvalidCity = errors.New("invalid city")

// Service answers forecast lookups from the cache and falls back to the source on misses and expiries.
type Service struct {
	source   Source
	cache    *aside.Aside[Forecast]
	validate *validator.Validate
}

// NewService is the constructor for Service.
func NewService(source Source, layer cache.Layer[Forecast]) *Service {
	return &Service{source: source, cache: aside.New(layer), validate: validator.New()}
}

// cacheKey is the cache key of a normalized city name.
func cacheKey(city string) string {
	return "forecast:" + city
}

// Forecast returns the forecast of city. City names are case-insensitive and surrounding spaces are ignored.
func (s *Service) Forecast(ctx context.Context, city string) (Forecast, error) {
	normalized := strings.ToLower(strings.TrimSpace(city))
	if err := s.validate.Var(normalized, "required,max=128"); err != nil {
		return Forecast{}, errors.Wrapf(ErrInvalidCity, "%q", city)
	}
	return s.cache.Get(ctx, cacheKey(normalized), func(ctx context.Context) (Forecast, error) {
		return s.source.Fetch(ctx, normalized)
	})
}

// Invalidate drops every cached forecast.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// CachedEntries returns the number of cached forecasts, including expired ones that were not looked up since.
func (s *Service) CachedEntries() int {
	return s.cache.Size()
}
