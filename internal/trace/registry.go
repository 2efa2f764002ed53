package trace

import "sync"

// Registry is the process-wide keyed store used to resume a transaction
// across execution phases that share no call stack (e.g. a data-loading
// phase handing off to a render phase). It is the only process-wide mutable
// structure in the engine; per-key operations are atomic under a mutex.
//
// Entries are leases, not permanent records: the Lifecycle Controller
// removes them when the transaction finishes, on both success and error
// paths, so the registry size is bounded by the number of concurrently
// in-flight cross-phase transactions.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Transaction
}

// NewRegistry creates an empty registry. The registry is owned by the
// process lifetime; create one at startup and share it via the Controller.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Transaction)}
}

// Stash inserts the transaction by its identifier. Overwrite-safe:
// re-stashing the same transaction is idempotent.
func (r *Registry) Stash(t *Transaction) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t.ID()] = t
}

// Lookup returns the transaction for the identifier. The second return is
// false for an empty, unknown, or already-removed identifier.
func (r *Registry) Lookup(id string) (*Transaction, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.entries[id]
	return t, ok
}

// Remove deletes the entry. Safe to call on an absent identifier.
func (r *Registry) Remove(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of in-flight entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
