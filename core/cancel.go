package core

import "sync"

// CancelOracle answers whether a request has been cancelled. The loop polls
// it at two checkpoints per turn (before the model call, after action
// execution); cancellation is cooperative, never preemptive, so an in-flight
// provider call completes or times out before the flag is observed.
//
// Implementations backed by a database or message bus should treat lookup
// failures as "not cancelled" so a flaky oracle cannot kill healthy runs.
type CancelOracle interface {
	IsCancelled(requestID string) bool
}

// NeverCancelled is the default oracle: no request is ever cancelled.
type NeverCancelled struct{}

// IsCancelled implements CancelOracle.
func (NeverCancelled) IsCancelled(string) bool { return false }

// InMemoryOracle is a process-local CancelOracle keyed by request id. Safe
// for concurrent use; useful for tests and single-process deployments where
// an HTTP cancel endpoint flips the flag.
type InMemoryOracle struct {
	mu        sync.RWMutex
	cancelled map[string]bool
}

// NewInMemoryOracle returns an empty oracle.
func NewInMemoryOracle() *InMemoryOracle {
	return &InMemoryOracle{cancelled: make(map[string]bool)}
}

// Cancel marks a request as cancelled. Idempotent.
func (o *InMemoryOracle) Cancel(requestID string) {
	o.mu.Lock()
	o.cancelled[requestID] = true
	o.mu.Unlock()
}

// IsCancelled implements CancelOracle.
func (o *InMemoryOracle) IsCancelled(requestID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cancelled[requestID]
}
