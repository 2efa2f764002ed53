package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/tracewrap/internal/platform/logging"
	"github.com/jsamuelsen/tracewrap/internal/trace"
)

// HeaderTransactionID carries the transaction ID on responses so clients and
// downstream phases can correlate, and on requests so a later phase can
// resume the transaction started by an earlier one.
const HeaderTransactionID = "X-Transaction-ID"

// TransactionConfig configures the transaction middleware.
type TransactionConfig struct {
	Controller *trace.Controller
	Logger     *slog.Logger

	// Enabled gates transaction creation. The isolation scope is installed
	// regardless, so error capture keeps working when tracing is off.
	Enabled bool

	// BuildMode disables instrumentation entirely during static generation
	// or ahead-of-time rendering, where there is no live request to trace.
	BuildMode bool

	// ExcludedPaths skips transaction creation for matching path prefixes
	// (health checks, static assets).
	ExcludedPaths []string

	// SuppressRouteWarning silences the warning logged when no route
	// template is available and the raw URL is used as the name.
	SuppressRouteWarning bool
}

// Transaction returns middleware that instruments each request with an
// isolation scope and a lifecycle-managed transaction.
//
// Every request gets a fresh scope on its context. When tracing is enabled,
// the middleware starts (or resumes, if the request carries a transaction ID
// from an earlier phase) a transaction named from the matched route template,
// and finalizes it through a close hook: status capture, finish, and flush
// all complete before the response is released. Handler errors and panics
// are captured on the scope exactly once; panics are re-thrown for the
// recovery middleware after finalization.
func Transaction(cfg TransactionConfig) gin.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		scope := trace.NewScope(logger)
		scope.AddEventProcessor(requestEnricher(c.Request.Method, c.Request.URL.Path, c.ClientIP()))

		ctx := trace.ContextWithScope(c.Request.Context(), scope)
		c.Request = c.Request.WithContext(ctx)

		if !cfg.Enabled || cfg.BuildMode || cfg.Controller == nil || isExcluded(c.Request.URL.Path, cfg.ExcludedPaths) {
			c.Next()
			return
		}

		name, source := requestName(c, logger, cfg.SuppressRouteWarning)

		txn := cfg.Controller.StartOrResume(trace.StartOptions{
			Name:         name,
			Op:           "http.server",
			Source:       source,
			ID:           c.GetHeader(HeaderTransactionID),
			Continuation: trace.ContinuationFromHeaders(c.Request.Header),
		})
		scope.SetTransaction(txn)

		ctx = logging.WithTransactionID(c.Request.Context(), txn.ID())
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTransactionID, txn.ID())

		hook := NewCloseHook(
			func() {
				txn.SetStatusCode(c.Writer.Status())
				cfg.Controller.Finish(ctx, txn)
			},
			c.Writer.WriteHeaderNow,
		)

		defer func() {
			if r := recover(); r != nil {
				scope.CaptureError(panicError(r), "http.middleware")
				if !c.Writer.Written() {
					c.Status(http.StatusInternalServerError)
				}
				// Finalize synchronously before the panic propagates: the
				// process may have no later opportunity to flush.
				hook.Close()
				panic(r)
			}
		}()

		c.Next()

		for _, ginErr := range c.Errors {
			scope.CaptureError(ginErr.Err, "gin.handler")
		}
		hook.Close()
	}
}

// requestName derives the transaction name, preferring the matched route
// template over the raw URL. Route templates yield low-cardinality names
// like "GET /users/[id]"; the raw URL is a last resort.
func requestName(c *gin.Context, logger *slog.Logger, suppressWarning bool) (string, trace.Source) {
	if tmpl := c.FullPath(); tmpl != "" {
		return trace.RouteName(c.Request.Method, tmpl), trace.SourceRoute
	}

	if !suppressWarning {
		logger.Warn("no route template matched, naming transaction from URL",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)
	}
	return trace.URLName(c.Request.Method, c.Request.URL.RequestURI()), trace.SourceURL
}

func isExcluded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// requestEnricher tags every captured event with the request it belongs to.
func requestEnricher(method, path, clientIP string) trace.EventProcessor {
	return func(e *trace.Event) *trace.Event {
		if e.Tags == nil {
			e.Tags = make(map[string]string)
		}
		e.Tags["http.method"] = method
		e.Tags["http.path"] = path
		e.Tags["client.ip"] = clientIP
		return e
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
