// Package loader wraps pre-render data-loading functions so that each phase
// of a multi-phase render pipeline participates in the request's transaction.
//
// A data loader runs in its own execution context: it may execute before the
// request handler, or in a separate invocation that shares no memory with
// the phase that renders the result. The wrapper therefore hands the
// transaction across phases by value, injecting the transaction ID into the
// loader's output props under a reserved key; the next phase feeds that ID
// back in and resumes the same transaction from the registry.
package loader

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jsamuelsen/tracewrap/internal/trace"
)

// TransactionIDKey is the reserved props key carrying the transaction ID
// between phases. A legitimate user field with this name is overridden; the
// wrapper logs a warning rather than rejecting the payload, since by the
// time the collision is visible the loader has already produced its result.
const TransactionIDKey = "__tracewrapTransactionID"

// Props is the payload a data loader produces for the render phase.
type Props map[string]any

// Result wraps a loader's output props.
type Result struct {
	Props Props
}

// Request describes the request a data loader runs for.
type Request struct {
	// Path is the raw request path, used for exclusion checks.
	Path string

	// Method and Route name the transaction when the route template is
	// known. Route may be empty for phases without route context.
	Method string
	Route  string

	// TransactionID resumes the transaction started by an earlier phase.
	// Empty when this is the first telemetry-bearing phase.
	TransactionID string
}

// Func is a data-loading function: it receives the request context and
// produces the props for the render phase.
type Func func(ctx context.Context, req *Request) (*Result, error)

// Config configures a Wrapper.
type Config struct {
	Controller *trace.Controller
	Logger     *slog.Logger

	// Enabled gates instrumentation; when false every wrapped loader is
	// called unmodified and its result returned as-is.
	Enabled bool

	// BuildMode disables instrumentation during static generation.
	BuildMode bool

	// ExcludedSuffixes bypasses instrumentation for matching request paths
	// (e.g. ".js.map" asset lookups that hit data loaders).
	ExcludedSuffixes []string
}

// Wrapper instruments data-loading functions.
type Wrapper struct {
	controller *trace.Controller
	logger     *slog.Logger
	enabled    bool
	buildMode  bool
	excluded   []string
}

// New creates a loader wrapper.
func New(cfg Config) *Wrapper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Wrapper{
		controller: cfg.Controller,
		logger:     logger,
		enabled:    cfg.Enabled,
		buildMode:  cfg.BuildMode,
		excluded:   cfg.ExcludedSuffixes,
	}
}

// WrapRoute wraps a data loader bound to a known route template. The
// transaction is named from the template immediately, so even if no later
// phase runs the exported name is the low-cardinality route form.
func (w *Wrapper) WrapRoute(phase string, fn Func) Func {
	return w.wrap(phase, true, fn)
}

// Wrap wraps a data loader that runs without route context. The transaction
// starts under a placeholder name and is renamed by a later phase that knows
// the matched route.
func (w *Wrapper) Wrap(phase string, fn Func) Func {
	return w.wrap(phase, false, fn)
}

func (w *Wrapper) wrap(phase string, named bool, fn Func) Func {
	return func(ctx context.Context, req *Request) (*Result, error) {
		if w.bypass(req) {
			return fn(ctx, req)
		}

		opts := trace.StartOptions{
			Op: "pageload",
			ID: req.TransactionID,
		}
		if named && req.Route != "" {
			opts.Name = trace.RouteName(req.Method, req.Route)
			opts.Source = trace.SourceRoute
		}

		txn := w.controller.StartOrResume(opts)

		scope := trace.ScopeFromContext(ctx)
		if scope != nil && scope.Transaction() == nil {
			scope.SetTransaction(txn)
		}

		span := w.controller.AttachChild(txn, "loader."+phase)
		res, err := fn(ctx, req)
		if span != nil {
			span.Finish()
		}

		if err != nil {
			if scope == nil {
				scope = trace.NewScope(w.logger)
				scope.SetTransaction(txn)
			}
			ce := scope.CaptureError(err, "loader")
			// No later phase will run for a failed load; finish here so the
			// registry lease is released and the telemetry is flushed.
			w.controller.Finish(ctx, txn)
			if ce != nil {
				// Propagate the wrapper so outer catch sites see the
				// already-reported marker.
				return res, ce
			}
			return res, err
		}

		w.injectTransactionID(res, txn.ID())
		return res, nil
	}
}

// bypass reports whether the wrapped function should run unmodified.
func (w *Wrapper) bypass(req *Request) bool {
	if !w.enabled || w.buildMode || w.controller == nil {
		return true
	}
	if req == nil {
		return true
	}
	for _, suffix := range w.excluded {
		if suffix != "" && strings.HasSuffix(req.Path, suffix) {
			return true
		}
	}
	return false
}

// injectTransactionID appends the transaction ID to the output props under
// the reserved key so the next phase can resume the transaction.
func (w *Wrapper) injectTransactionID(res *Result, id string) {
	if res == nil {
		return
	}
	if res.Props == nil {
		res.Props = make(Props)
	}
	if existing, ok := res.Props[TransactionIDKey]; ok && existing != id {
		w.logger.Warn("reserved props key already set, overriding",
			slog.String("key", TransactionIDKey),
		)
	}
	res.Props[TransactionIDKey] = id
}

// TransactionIDFromProps extracts the reserved transaction ID from a props
// payload produced by an earlier phase. Returns empty string if absent.
func TransactionIDFromProps(props Props) string {
	if id, ok := props[TransactionIDKey].(string); ok {
		return id
	}
	return ""
}
