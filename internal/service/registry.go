package service

import (
	"context"
	"sync"
)

// CancelRegistry holds the live cancellation handles of runs started in this
// process, keyed by run id. A handle is added when the run starts and removed
// when it ends.
type CancelRegistry struct {
	mu      sync.Mutex
	handles map[string]context.CancelFunc
}

// NewCancelRegistry creates an empty CancelRegistry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{handles: make(map[string]context.CancelFunc)}
}

// Register stores the cancel function of runID.
func (r *CancelRegistry) Register(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[runID] = cancel
}

// Remove forgets runID.
func (r *CancelRegistry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, runID)
}

// Cancel signals runID and reports whether a live handle existed.
func (r *CancelRegistry) Cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.handles[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Len returns the number of live handles.
func (r *CancelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CancelAll signals every live run and returns how many were signalled.
func (r *CancelRegistry) CancelAll() int {
	r.mu.Lock()
	handles := make([]context.CancelFunc, 0, len(r.handles))
	for _, cancel := range r.handles {
		handles = append(handles, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range handles {
		cancel()
	}
	return len(handles)
}
