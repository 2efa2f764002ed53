// Package main is the entry point for the service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsamuelsen/tracewrap/internal/adapters/datasource"
	"github.com/jsamuelsen/tracewrap/internal/adapters/http"
	"github.com/jsamuelsen/tracewrap/internal/adapters/http/handlers"
	"github.com/jsamuelsen/tracewrap/internal/app"
	"github.com/jsamuelsen/tracewrap/internal/loader"
	"github.com/jsamuelsen/tracewrap/internal/platform/config"
	"github.com/jsamuelsen/tracewrap/internal/platform/logging"
	"github.com/jsamuelsen/tracewrap/internal/platform/telemetry"
	"github.com/jsamuelsen/tracewrap/internal/ports"
	"github.com/jsamuelsen/tracewrap/internal/trace"
)

// Build-time variables, injected via ldflags.
// Example: go build -ldflags "-X main.Version=1.0.0 -X main.Commit=$(git rev-parse HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version of the service.
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "unknown"

	// BuildTime is the timestamp when the binary was built.
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// 1. Determine profile from environment
	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	// 2. Load and validate configuration (fail fast)
	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 3. Initialize logging
	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
	)

	// 4. Initialize telemetry (noop if disabled)
	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telProvider.Shutdown(ctx); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	// 5. Wire the transaction export pipeline: recorder replays finished
	// transactions as OTLP spans, flusher drives them to the collector
	// before instrumented responses are released.
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	// The recorder uses the global tracer provider registered above; with
	// telemetry disabled it records into the noop provider.
	recorder := telemetry.NewTraceRecorder(metrics)
	flusher := telemetry.NewProviderFlusher(telProvider.TracerProvider(), metrics)

	controller := trace.NewController(trace.ControllerConfig{
		Recorder:     recorder,
		Flusher:      flusher,
		Logger:       logger,
		FlushTimeout: cfg.Tracing.FlushTimeout,
	})

	// 6. Create data sources and health registry
	store := datasource.NewSeededStore()

	healthRegistry := ports.NewHealthRegistry()
	if err := healthRegistry.Register(store); err != nil {
		return fmt.Errorf("registering datasource health check: %w", err)
	}

	// 7. Create page service (application layer)
	pageService := app.NewPageService(app.PageServiceConfig{
		Users:    store,
		Articles: store,
		Logger:   logger,
	})

	// 8. Create loader wrapper for instrumented data loading
	wrapper := loader.New(loader.Config{
		Controller:       controller,
		Logger:           logger,
		Enabled:          cfg.Tracing.Enabled,
		BuildMode:        cfg.Tracing.BuildMode,
		ExcludedSuffixes: cfg.Tracing.ExcludedSuffixes,
	})

	// 9. Create handlers
	buildInfo := handlers.NewBuildInfo(Version, Commit, BuildTime)
	healthHandler := handlers.NewHealthHandler(healthRegistry, buildInfo)
	pageHandler := handlers.NewPageHandler(pageService, wrapper, store.UserIDs())

	// 10. Create HTTP server
	server := http.New(&cfg.Server, logger)

	// 11. Setup router with all middleware and routes
	routerCfg := http.RouterConfig{
		Logger:        logger,
		AppConfig:     &cfg.App,
		TracingConfig: &cfg.Tracing,
		Controller:    controller,
		HealthHandler: healthHandler,
		PageHandler:   pageHandler,
		Timeout:       http.DefaultRequestTimeout,
	}
	http.SetupRouter(server.Engine(), routerCfg)

	// 12. Start server (non-blocking)
	serverErr := server.Start()

	// 13. Wait for shutdown signal
	return waitForShutdown(ctx, logger, server, serverErr, cfg.Server.ShutdownTimeout)
}

// waitForShutdown blocks until a shutdown signal is received or server error occurs.
// It then performs graceful shutdown of the HTTP server.
func waitForShutdown(
	ctx context.Context,
	logger *slog.Logger,
	server *http.Server,
	serverErr <-chan error,
	shutdownTimeout time.Duration,
) error {
	// Listen for OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		// Server error during startup or runtime
		return fmt.Errorf("server error: %w", err)

	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	// Graceful shutdown sequence
	logger.Info("initiating graceful shutdown",
		slog.Duration("timeout", shutdownTimeout),
	)

	// Stop accepting new requests, drain in-flight
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")

	return nil
}
