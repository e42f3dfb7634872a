// Spins up the hitcache server: a Redis protocol cache and an HTTP weather API backed by a cache-aside cache.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nobletooth/hitcache/pkg/aside"
	"github.com/nobletooth/hitcache/pkg/cache"
	"github.com/nobletooth/hitcache/pkg/config"
	"github.com/nobletooth/hitcache/pkg/port"
	"github.com/nobletooth/hitcache/pkg/utils"
	"github.com/nobletooth/hitcache/pkg/weather"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

var (
	printVersion = flag.Bool("print_version", false, "Print the version and exit.")
	traceStdout  = flag.Bool("trace_stdout", false, "Export cache-aside traces to stdout.")
)

// initTracing installs a stdout exporting tracer provider if enabled; the returned function flushes it.
func initTracing() (func(context.Context) error, error) {
	if !*traceStdout {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// run wires the caches to the servers and blocks until ctx is cancelled or a server fails.
func run(ctx context.Context) error {
	redisLayer, err := cache.FromFlags(aside.CountEviction[[]byte])
	if err != nil {
		return fmt.Errorf("failed to create the redis cache: %w", err)
	}
	forecastLayer, err := cache.FromFlags(aside.CountEviction[weather.Forecast])
	if err != nil {
		return fmt.Errorf("failed to create the forecast cache: %w", err)
	}
	service := weather.NewService(weather.HTTPSourceFromFlags(), forecastLayer)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return port.RunRedisServer(groupCtx, redisLayer) })
	group.Go(func() error { return port.RunHTTPServer(groupCtx, service) })
	return group.Wait()
}

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Hitcache build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	shutdownTracing, err := initTracing()
	if err != nil {
		slog.Error("Failed to initialize tracing.", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() { // Listen for OS interrupts in the background.
		sig := <-signals
		slog.Info("Received termination signal, cancelling server context.", "signal", sig)
		cancel()
	}()

	runErr := run(ctx)
	if err := shutdownTracing(context.Background()); err != nil {
		slog.Error("Failed to flush traces.", "error", err)
	}
	if runErr != nil {
		slog.Error("Hitcache server stopped.", "error", runErr, "uptime", utils.Uptime())
		os.Exit(1)
	}
	slog.Info("Hitcache server stopped.", "uptime", utils.Uptime())
}
