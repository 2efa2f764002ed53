package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source classifies how a transaction name was derived. It is exported with
// the transaction so the backend can decide whether names are safe to group.
type Source string

const (
	// SourceRoute means the name came from a matched route template and is
	// safe to aggregate across requests.
	SourceRoute Source = "route"

	// SourceURL means the name is a raw URL path; it may contain
	// high-cardinality segments.
	SourceURL Source = "url"

	// SourceCustom means the name was set by instrumentation without route
	// context (e.g. the placeholder used by unbound data-loading phases).
	SourceCustom Source = "custom"
)

// sourceRank orders name sources by specificity for rename decisions.
func sourceRank(s Source) int {
	switch s {
	case SourceRoute:
		return 2
	case SourceURL:
		return 1
	default:
		return 0
	}
}

// Transaction is a root-level timed unit of work representing one logical
// request or multi-phase render pipeline, correlated across phases by its ID.
//
// A transaction transitions through at most one start and at most one
// finish. It is owned exclusively by the phase that started it until handed
// off via the Registry; handoff transfers ownership, it never duplicates
// the transaction.
type Transaction struct {
	mu sync.Mutex

	id           string
	name         string
	op           string
	source       Source
	startTime    time.Time
	endTime      time.Time
	statusCode   int
	tags         map[string]string
	spans        []*Span
	events       []*Event
	continuation *Continuation
	finished     bool
}

func newTransaction(name, op string, source Source, cont *Continuation) *Transaction {
	return &Transaction{
		id:           uuid.NewString(),
		name:         name,
		op:           op,
		source:       source,
		startTime:    time.Now(),
		continuation: cont,
	}
}

// ID returns the transaction identifier, stable across phases.
func (t *Transaction) ID() string {
	return t.id
}

// Name returns the current human-readable route label.
func (t *Transaction) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// Op returns the operation tag.
func (t *Transaction) Op() string {
	return t.op
}

// Source returns the current name source classification.
func (t *Transaction) Source() Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

// StartTime returns when the transaction started.
func (t *Transaction) StartTime() time.Time {
	return t.startTime
}

// EndTime returns when the transaction finished, or the zero time if it is
// still in flight.
func (t *Transaction) EndTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endTime
}

// StatusCode returns the recorded HTTP status code, 0 if none was set.
func (t *Transaction) StatusCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusCode
}

// SetStatusCode records the final HTTP status. No-op once finished.
func (t *Transaction) SetStatusCode(code int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.statusCode = code
}

// SetTag attaches a key-value tag. No-op once finished.
func (t *Transaction) SetTag(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	if t.tags == nil {
		t.tags = make(map[string]string)
	}
	t.tags[key] = value
}

// Tags returns a copy of the transaction's tags.
func (t *Transaction) Tags() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tags := make(map[string]string, len(t.tags))
	for k, v := range t.tags {
		tags[k] = v
	}
	return tags
}

// Rename updates the transaction name. The most specific name wins: a route
// template always replaces a URL or placeholder name, while a less specific
// source never downgrades an existing route name. Within the same
// specificity the latest rename wins, since later phases know more about the
// request than earlier ones. No-op once finished.
func (t *Transaction) Rename(name string, source Source) {
	if name == "" || name == Placeholder {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	if t.name != Placeholder && sourceRank(source) < sourceRank(t.source) {
		return
	}
	t.name = name
	t.source = source
}

// Continuation returns the upstream trace continuation, nil if the request
// did not carry propagation headers.
func (t *Transaction) Continuation() *Continuation {
	return t.continuation
}

// Finished reports whether the transaction has been sealed.
func (t *Transaction) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// StartChild starts a timed child span nested under the transaction. The
// caller must finish it explicitly; children still open when the transaction
// finishes are closed at the transaction's end time.
func (t *Transaction) StartChild(op string) *Span {
	s := &Span{op: op, startTime: time.Now()}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		// Late child: already closed interval, record as zero-length at end.
		s.closeAt(t.endTime)
		s.startTime = t.endTime
		return s
	}
	t.spans = append(t.spans, s)
	return s
}

// Spans returns a snapshot of the child spans.
func (t *Transaction) Spans() []SpanData {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanData, 0, len(t.spans))
	for _, s := range t.spans {
		out = append(out, s.snapshot())
	}
	return out
}

// Events returns a snapshot of the error events captured on the transaction.
func (t *Transaction) Events() []*Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Event, len(t.events))
	copy(out, t.events)
	return out
}

func (t *Transaction) addEvent(e *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.events = append(t.events, e)
}

// finish seals the transaction. Returns false if it was already finished,
// so a second finish can never be double-counted downstream. Child spans
// still open are clamped to the transaction end time (strict nesting).
func (t *Transaction) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	t.endTime = time.Now()
	for _, s := range t.spans {
		s.closeAt(t.endTime)
	}
	return true
}

// Span is a named, timed sub-operation nested under a transaction.
type Span struct {
	mu        sync.Mutex
	op        string
	startTime time.Time
	endTime   time.Time
}

// SpanData is an immutable snapshot of a span, safe to hand to exporters.
type SpanData struct {
	Op        string
	StartTime time.Time
	EndTime   time.Time
}

// Op returns the span's operation label.
func (s *Span) Op() string {
	return s.op
}

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time {
	return s.startTime
}

// EndTime returns when the span finished, or the zero time if still open.
func (s *Span) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

// Finish closes the span. Safe to call multiple times; only the first call
// records the end time.
func (s *Span) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endTime.IsZero() {
		return
	}
	s.endTime = time.Now()
}

// closeAt caps the span at the given time. Used when the parent transaction
// finishes: a span must finish before or at the same time as its parent.
func (s *Span) closeAt(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTime.IsZero() || s.endTime.After(at) {
		s.endTime = at
	}
}

func (s *Span) snapshot() SpanData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpanData{Op: s.op, StartTime: s.startTime, EndTime: s.endTime}
}
