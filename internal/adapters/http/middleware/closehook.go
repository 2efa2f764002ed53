package middleware

import "sync"

// CloseHook decorates a response close so that a finalize step runs before
// the underlying close, exactly once. Both the normal completion path and
// the panic path call Close; whichever arrives first wins and the other is
// a no-op, so the transaction can never be finalized twice and the response
// is never released before finalization completes.
type CloseHook struct {
	once     sync.Once
	finalize func()
	close    func()
}

// NewCloseHook creates a close hook. Either func may be nil.
func NewCloseHook(finalize, close func()) *CloseHook {
	return &CloseHook{finalize: finalize, close: close}
}

// Close runs finalize then the underlying close. Idempotent.
func (h *CloseHook) Close() {
	h.once.Do(func() {
		if h.finalize != nil {
			h.finalize()
		}
		if h.close != nil {
			h.close()
		}
	})
}
