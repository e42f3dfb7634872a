// Package weather serves city forecasts from an upstream weather API through a cache-aside cache, so repeated
// lookups of the same city within the cache TTL don't hit the upstream.
package weather

import (
	"context"
	"time"
)

// Forecast is the current weather of a city as reported by the upstream API.
type Forecast struct {
	City         string    `json:"city" validate:"required"`
	TemperatureC float64   `json:"temperature_c" validate:"gte=-100,lte=70"`
	WindSpeedKmh float64   `json:"wind_speed_kmh" validate:"gte=0"`
	Conditions   string    `json:"conditions" validate:"required"`
	ObservedAt   time.Time `json:"observed_at" validate:"required"`
}

// Source is the source of truth for forecasts.
type Source interface {
	// Fetch returns the forecast of a lowercase city name. It returns an error matching ErrCityNotFound for unknown
	// cities.
	Fetch(ctx context.Context, city string) (Forecast, error)
}
