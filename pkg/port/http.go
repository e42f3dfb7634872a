package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nobletooth/hitcache/pkg/weather"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpAddress         = flag.String("http_address", ":8080", "The ip:port to listen on for the HTTP API.")
	httpShutdownTimeout = flag.Duration("http_shutdown_timeout", 5*time.Second,
		"How long to wait for in-flight HTTP requests when shutting down.")
)

// forecaster is the part of weather.Service the HTTP API serves.
type forecaster interface {
	Forecast(ctx context.Context, city string) (weather.Forecast, error)
	Invalidate()
	CachedEntries() int
}

var _ forecaster = (*weather.Service)(nil)

// newRouter registers the HTTP API routes.
func newRouter(service forecaster) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logRequests)

	v1 := router.Group("/v1")
	v1.GET("/forecast/:city", func(c *gin.Context) {
		forecast, err := service.Forecast(c.Request.Context(), c.Param("city"))
		if err != nil {
			c.JSON(forecastErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, forecast)
	})
	v1.GET("/cache", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"size": service.CachedEntries()})
	})
	v1.DELETE("/cache", func(c *gin.Context) {
		service.Invalidate()
		c.Status(http.StatusNoContent)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// forecastErrorStatus maps a forecast lookup error to its HTTP status.
func forecastErrorStatus(err error) int {
	switch {
	case errors.Is(err, weather.ErrInvalidCity):
		return http.StatusBadRequest
	case errors.Is(err, weather.ErrCityNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// logRequests is a gin middleware that logs every served request.
func logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	slog.Debug("Served HTTP request.", "method", c.Request.Method, "path", c.Request.URL.Path,
		"status", c.Writer.Status(), "latency", time.Since(start))
}

// RunHTTPServer serves the HTTP API until ctx is cancelled, then waits for in-flight requests to finish.
func RunHTTPServer(ctx context.Context, service forecaster) error {
	if *httpAddress == "" {
		return errors.New("expected a non-empty --http_address flag")
	}
	if service == nil {
		return errors.New("expected a non-nil forecast service")
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{Addr: *httpAddress, Handler: newRouter(service)}
	serverErrSignal := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()
	slog.Info("Serving HTTP API.", "address", *httpAddress)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *httpShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
	case err, ok := <-serverErrSignal:
		if ok {
			return fmt.Errorf("http server stopped unexpectedly: %w", err)
		}
	}

	return nil // Exited with no errors.
}
