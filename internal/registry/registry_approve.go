package registry

import (
	"github.com/worklet/fleet/pkg/fleet"
)

// Decide delivers a permission decision to workerID's broker. Returns
// fleet.ErrNotFound if workerID is unknown, fleet.ErrWrongState if the
// worker is not Active, and whatever the broker itself returns (typically
// fleet.ErrNotFound again) if requestID is not outstanding.
func (r *Registry) Decide(workerID string, dec fleet.PermissionDecision) error {
	r.mu.Lock()
	w, ok := r.workers[workerID]
	r.mu.Unlock()
	if !ok {
		return fleet.ErrNotFound
	}

	if w.currentState() != fleet.StateActive {
		return fleet.ErrWrongState
	}
	b := w.currentBroker()
	if b == nil {
		return fleet.ErrWrongState
	}
	return b.Decide(dec)
}

// Approve is a convenience wrapper over Decide for the common allow case.
func (r *Registry) Approve(workerID, requestID string) error {
	return r.Decide(workerID, fleet.PermissionDecision{RequestID: requestID, Allow: true})
}

// Deny is a convenience wrapper over Decide for the common reject case.
func (r *Registry) Deny(workerID, requestID, message string) error {
	return r.Decide(workerID, fleet.PermissionDecision{RequestID: requestID, Allow: false, Message: message})
}
