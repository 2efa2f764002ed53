package trace

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// DefaultFlushTimeout bounds how long a finish waits for buffered telemetry
// to reach the collector before releasing the response.
const DefaultFlushTimeout = 2 * time.Second

// Recorder receives finished transactions for export. Implementations must
// not retain the transaction beyond the call.
type Recorder interface {
	RecordTransaction(ctx context.Context, t *Transaction)
}

// Flusher delivers buffered telemetry to the remote collector within the
// deadline of the given context.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Controller starts, resumes, and finishes transactions, and orchestrates
// the finish-then-flush sequence that must complete before a process-ending
// response is released.
type Controller struct {
	registry     *Registry
	recorder     Recorder
	flusher      Flusher
	logger       *slog.Logger
	flushTimeout time.Duration
}

// ControllerConfig configures a Controller. Recorder and Flusher may be nil
// (record/flush steps are skipped); a nil Registry gets a fresh one.
type ControllerConfig struct {
	Registry     *Registry
	Recorder     Recorder
	Flusher      Flusher
	Logger       *slog.Logger
	FlushTimeout time.Duration
}

// NewController creates a lifecycle controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	return &Controller{
		registry:     cfg.Registry,
		recorder:     cfg.Recorder,
		flusher:      cfg.Flusher,
		logger:       cfg.Logger,
		flushTimeout: cfg.FlushTimeout,
	}
}

// Registry exposes the controller's registry for phase wrappers.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// StartOptions describes the transaction to start or resume.
type StartOptions struct {
	Name   string
	Op     string
	Source Source

	// ID resumes the identified transaction from the registry. A miss is
	// benign: the controller falls back to starting a fresh transaction.
	ID string

	// Continuation carries upstream trace identifiers, if any.
	Continuation *Continuation
}

// StartOrResume returns the in-flight transaction identified by opts.ID if
// it resolves in the registry, renamed with the (more specific) incoming
// name. Otherwise it starts a fresh transaction and stashes it so later
// phases can resume it.
func (c *Controller) StartOrResume(opts StartOptions) *Transaction {
	if opts.ID != "" {
		if t, ok := c.registry.Lookup(opts.ID); ok {
			t.Rename(opts.Name, opts.Source)
			return t
		}
		c.logger.Debug("transaction not in registry, starting fresh",
			slog.String("transaction_id", opts.ID),
		)
	}

	name := opts.Name
	if name == "" {
		name = Placeholder
	}
	t := newTransaction(name, opts.Op, opts.Source, opts.Continuation)
	c.registry.Stash(t)
	return t
}

// AttachChild starts a timed child span under the transaction. The caller
// must finish the span explicitly. Nil-safe.
func (c *Controller) AttachChild(t *Transaction, op string) *Span {
	if t == nil {
		return nil
	}
	return t.StartChild(op)
}

// Finish seals the transaction, records it, releases its registry lease,
// and flushes buffered telemetry bounded by the flush timeout. A flush
// failure or timeout is logged and swallowed so it never fails the response.
//
// Finish is idempotent: a second call is a no-op, yielding exactly one end
// timestamp and one flush attempt per transaction. A nil transaction (path
// excluded, tracing disabled) skips the step entirely.
func (c *Controller) Finish(ctx context.Context, t *Transaction) {
	if t == nil {
		return
	}

	// Deliberate ordering barrier: yield one scheduling turn so child spans
	// started just before the finish call get a chance to record.
	runtime.Gosched()

	if !t.finish() {
		c.logger.Debug("transaction already finished",
			slog.String("transaction_id", t.ID()),
		)
		return
	}

	if c.recorder != nil {
		c.recorder.RecordTransaction(ctx, t)
	}
	c.registry.Remove(t.ID())
	c.flush(ctx)
}

// FinishScope finishes the transaction on the context's scope, if there is
// one. Used by response finalization hooks, where no transaction means the
// finish and flush steps are skipped, not an error.
func (c *Controller) FinishScope(ctx context.Context) {
	scope := ScopeFromContext(ctx)
	if scope == nil {
		return
	}
	c.Finish(ctx, scope.Transaction())
}

func (c *Controller) flush(ctx context.Context) {
	if c.flusher == nil {
		return
	}

	// The request context may already be cancelled when finalization runs
	// from a close hook; the flush gets its own deadline.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flushTimeout)
	defer cancel()

	start := time.Now()
	if err := c.flusher.Flush(flushCtx); err != nil {
		// Transport errors never surface as handler errors.
		c.logger.Warn("telemetry flush failed",
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
