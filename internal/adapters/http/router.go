package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/tracewrap/internal/adapters/http/handlers"
	"github.com/jsamuelsen/tracewrap/internal/adapters/http/middleware"
	"github.com/jsamuelsen/tracewrap/internal/platform/config"
	"github.com/jsamuelsen/tracewrap/internal/trace"
)

// DefaultRequestTimeout is the default timeout for API requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	// Logger is the structured logger for request logging.
	Logger *slog.Logger

	// AppConfig contains application configuration.
	AppConfig *config.AppConfig

	// TracingConfig controls the transaction middleware.
	TracingConfig *config.TracingConfig

	// Controller drives transaction start, resume, and finish.
	Controller *trace.Controller

	// HealthHandler handles health check endpoints.
	HealthHandler *handlers.HealthHandler

	// PageHandler handles the page data endpoints.
	PageHandler *handlers.PageHandler

	// Timeout is the default request timeout.
	Timeout time.Duration
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware is applied in the following order (first to last):
//  1. Recovery - catch panics first, so the transaction finalizer below can
//     re-panic after sealing telemetry and still produce a 500 envelope
//  2. Request ID - generate/extract request ID
//  3. Correlation ID - handle distributed tracing correlation
//  4. Transaction - per-request transaction lifecycle and isolation scope
//  5. Logging - request logging (skips health endpoints)
//  6. Timeout - request deadline (applied per-route or globally)
//
// Route groups:
//   - /-/ (internal): Health endpoints, never instrumented
//   - /pages/ (public): Page data endpoints
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
		middleware.Transaction(transactionConfig(cfg)),
		middleware.Logging(cfg.Logger),
	)

	// Register health endpoints (no timeout for probes)
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	root := engine.Group("")
	if cfg.Timeout > 0 {
		root.Use(middleware.SimpleTimeout(cfg.Timeout))
	}

	if cfg.PageHandler != nil {
		cfg.PageHandler.RegisterPageRoutes(root)
	}
}

// transactionConfig maps the application tracing configuration onto the
// transaction middleware.
func transactionConfig(cfg RouterConfig) middleware.TransactionConfig {
	mc := middleware.TransactionConfig{
		Controller: cfg.Controller,
		Logger:     cfg.Logger,
	}

	if cfg.TracingConfig != nil {
		mc.Enabled = cfg.TracingConfig.Enabled
		mc.BuildMode = cfg.TracingConfig.BuildMode
		mc.ExcludedPaths = cfg.TracingConfig.ExcludedPaths
		mc.SuppressRouteWarning = cfg.TracingConfig.SuppressRouteWarning
	}

	return mc
}

// SetupMinimalRouter sets up a minimal router with just health endpoints.
// Useful for testing or lightweight deployments.
func SetupMinimalRouter(engine *gin.Engine, logger *slog.Logger, healthHandler *handlers.HealthHandler) {
	engine.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
	)

	if healthHandler != nil {
		healthHandler.RegisterHealthRoutesOnEngine(engine)
	}
}
