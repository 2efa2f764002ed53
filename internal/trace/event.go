package trace

import (
	"errors"
	"sync/atomic"
	"time"
)

// Event is a telemetry event describing a captured error. Events are built
// by the scope, run through its processors, and attached to the scope's
// transaction for export at finish time.
type Event struct {
	Timestamp time.Time
	Message   string
	Err       error
	// Handled marks the error as caught by instrumentation rather than
	// crashing the process.
	Handled bool
	// Mechanism labels the instrumentation layer that caught the error.
	Mechanism string
	Tags      map[string]string
}

// EventProcessor enriches or drops an event. Returning nil drops it.
type EventProcessor func(*Event) *Event

// CapturedError wraps an error with an explicit already-reported flag. The
// same underlying error can legitimately be observed at more than one catch
// site in a multi-phase pipeline; the flag guarantees it is reported to the
// backend exactly once. The wrapper propagates as part of the error value,
// so redundant catch sites see the marker through errors.As.
type CapturedError struct {
	err      error
	reported atomic.Bool
}

// Capture normalizes err to a *CapturedError. Idempotent: an error that
// already carries a CapturedError anywhere in its chain is returned as that
// wrapper, preserving its reported state. Returns nil for a nil error.
func Capture(err error) *CapturedError {
	if err == nil {
		return nil
	}
	var ce *CapturedError
	if errors.As(err, &ce) {
		return ce
	}
	return &CapturedError{err: err}
}

// Error implements the error interface, delegating to the wrapped error so
// the error's shape is unchanged for the caller.
func (e *CapturedError) Error() string {
	return e.err.Error()
}

// Unwrap exposes the wrapped error to errors.Is / errors.As.
func (e *CapturedError) Unwrap() error {
	return e.err
}

// MarkReported flips the reported flag. Returns true only for the first
// caller; later catch sites get false and must not report again.
func (e *CapturedError) MarkReported() bool {
	return e.reported.CompareAndSwap(false, true)
}

// Reported reports whether the error was already sent to the backend.
func (e *CapturedError) Reported() bool {
	return e.reported.Load()
}
