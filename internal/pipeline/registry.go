package pipeline

import (
	"sync"
)

// CancelRegistry tracks cooperative cancellation flags keyed by run ID.
// Phases poll the flag at batch and tier boundaries; setting it never
// interrupts in-flight work, it only stops the next boundary from starting.
type CancelRegistry struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{flags: make(map[string]bool)}
}

// Register adds a run with an unset flag. Registering an existing run
// resets its flag.
func (r *CancelRegistry) Register(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[runID] = false
}

// Cancel sets the flag for a run. It reports whether the run was known.
func (r *CancelRegistry) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.flags[runID]
	if known {
		r.flags[runID] = true
	}
	return known
}

// Cancelled reports the current flag for a run.
func (r *CancelRegistry) Cancelled(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[runID]
}

// CancelAll sets the flag for every registered run. The CLI uses this on
// SIGINT, where only one run is active per process.
func (r *CancelRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.flags {
		r.flags[id] = true
	}
}

// Release forgets a finished run.
func (r *CancelRegistry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, runID)
}
