package weather

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	apiURL       = flag.String("weather_api_url", "http://localhost:8081", "Base URL of the upstream weather API.")
	fetchTimeout = flag.Duration("weather_fetch_timeout", 5*time.Second,
		"The deadline of a single upstream forecast fetch, including the time spent waiting for the rate limiter.")
	rateLimit = flag.Float64("weather_rate_limit", 10, "The maximum number of upstream fetches per second.")
	rateBurst = flag.Int("weather_rate_burst", 5, "The number of upstream fetches allowed to exceed the rate limit.")
)

// ErrCityNotFound is matched by errors returned for cities the upstream doesn't know.
var ErrCityNotFound = errors.New("city not found")

// HTTPSource fetches forecasts from the upstream weather API.
type HTTPSource struct { // Implements Source.
	baseURL  string
	timeout  time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	validate *validator.Validate
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource is the constructor for HTTPSource.
func NewHTTPSource(baseURL string, timeout time.Duration, limiter *rate.Limiter) *HTTPSource {
	return &HTTPSource{
		baseURL:  baseURL,
		timeout:  timeout,
		client:   &http.Client{},
		limiter:  limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HTTPSourceFromFlags builds an HTTPSource according to the configured flags.
func HTTPSourceFromFlags() *HTTPSource {
	return NewHTTPSource(*apiURL, *fetchTimeout, rate.NewLimiter(rate.Limit(*rateLimit), *rateBurst))
}

// Fetch calls `GET {baseURL}/v1/forecast?city={city}` and validates the decoded forecast.
func (s *HTTPSource) Fetch(ctx context.Context, city string) (Forecast, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return Forecast{}, errors.Wrapf(err, "rate limited fetching forecast of %q", city)
	}
	endpoint := s.baseURL + "/v1/forecast?" + url.Values{"city": {city}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Forecast{}, errors.Wrap(err, "failed to build forecast request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Forecast{}, errors.Wrapf(err, "failed to fetch forecast of %q", city)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Forecast{}, errors.Wrapf(ErrCityNotFound, "upstream has no forecast of %q", city)
	default:
		return Forecast{}, errors.Errorf("unexpected upstream status %d fetching forecast of %q", resp.StatusCode, city)
	}

	var forecast Forecast
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return Forecast{}, errors.Wrapf(err, "failed to decode forecast of %q", city)
	}
	if err := s.validate.Struct(forecast); err != nil {
		return Forecast{}, errors.Wrapf(err, "invalid forecast of %q", city)
	}
	return forecast, nil
}
