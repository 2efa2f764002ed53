package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type scopeCtxKey struct{}

// Scope is the per-request container for observability state: the active
// transaction, event-enrichment processors, and contextual tags.
//
// A scope is created when request handling starts and travels with the
// request explicitly through its context; it is never stored in process
// globals, so two requests handled concurrently by the same process can
// never observe each other's scope state.
type Scope struct {
	mu         sync.Mutex
	txn        *Transaction
	processors []EventProcessor
	tags       map[string]string
	logger     *slog.Logger
}

// NewScope creates an empty scope. A nil logger falls back to slog.Default.
func NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{logger: logger}
}

// ContextWithScope attaches the scope to the context. All code invoked from
// within the request, directly or via further goroutines sharing this
// context, reads and writes only this scope's state.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, s)
}

// ScopeFromContext extracts the scope from the context, nil if absent.
func ScopeFromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	if s, ok := ctx.Value(scopeCtxKey{}).(*Scope); ok {
		return s
	}
	return nil
}

// SetTransaction installs the scope's active transaction.
func (s *Scope) SetTransaction(t *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txn = t
}

// Transaction returns the scope's active transaction, nil if tracing is not
// active for this request.
func (s *Scope) Transaction() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn
}

// AddEventProcessor registers an enrichment callback invoked on every event
// captured within the scope. Processors run in registration order; a
// processor returning nil drops the event.
func (s *Scope) AddEventProcessor(fn EventProcessor) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processors = append(s.processors, fn)
}

// SetTag attaches a contextual tag to the scope. Tags are copied onto every
// event captured within the scope.
func (s *Scope) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags[key] = value
}

// Tags returns a copy of the scope's tags.
func (s *Scope) Tags() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	return tags
}

// CaptureError reports err to the telemetry backend exactly once, no matter
// how many wrapper layers observe it. The error is normalized to a
// *CapturedError, the event is enriched by the scope's processors and tags,
// attached to the scope's transaction, and logged. The returned wrapper has
// the same error shape as the input and must be propagated unchanged.
func (s *Scope) CaptureError(err error, mechanism string) *CapturedError {
	ce := Capture(err)
	if ce == nil {
		return nil
	}
	if !ce.MarkReported() {
		// An inner catch site already reported this error.
		return ce
	}

	event := &Event{
		Timestamp: time.Now(),
		Message:   ce.Error(),
		Err:       ce.Unwrap(),
		Handled:   true,
		Mechanism: mechanism,
		Tags:      s.Tags(),
	}

	event = s.applyProcessors(event)
	if event == nil {
		return ce
	}

	s.mu.Lock()
	txn := s.txn
	logger := s.logger
	s.mu.Unlock()

	if txn != nil {
		txn.addEvent(event)
	}

	logger.Error("captured error",
		slog.String("mechanism", mechanism),
		slog.Any("error", event.Err),
	)

	return ce
}

func (s *Scope) applyProcessors(event *Event) *Event {
	s.mu.Lock()
	processors := make([]EventProcessor, len(s.processors))
	copy(processors, s.processors)
	s.mu.Unlock()

	for _, fn := range processors {
		event = fn(event)
		if event == nil {
			return nil
		}
	}
	return event
}
