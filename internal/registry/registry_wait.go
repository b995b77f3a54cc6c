package registry

import (
	"context"

	"github.com/worklet/fleet/pkg/fleet"
)

// Wait blocks until there is something for the caller to act on — any
// completed or failed worker, or a permission request awaiting a decision —
// and returns a full, idempotent snapshot of that state. The snapshot is
// cumulative: a worker that finished before this call still counts, so Wait
// returns at once while any Completed or Failed worker is in the table. It never collapses
// a permission request behind in-flight Active workers: pending permissions
// are always included, even while other workers are still running, so a
// caller that only reacts to completions can never deadlock a worker that
// is blocked on a decision.
//
// Wait polls on a bounded horizon rather than waiting forever on the event
// core's wake channel, so a Publish that races the select in Core.Drain is
// never missed for more than one horizon.
func (r *Registry) Wait(ctx context.Context) (fleet.WorkerStateSnapshot, error) {
	for {
		snap := r.snapshot()
		if len(snap.Completed) > 0 || len(snap.Failed) > 0 || len(snap.PendingPermissions) > 0 {
			return snap, nil
		}

		if r.activeCount() == 0 {
			return fleet.WorkerStateSnapshot{}, fleet.ErrNoActiveWorkers
		}

		select {
		case <-ctx.Done():
			return fleet.WorkerStateSnapshot{}, ctx.Err()
		case <-r.done:
			return fleet.WorkerStateSnapshot{}, ctx.Err()
		default:
		}

		r.core.Drain(r.pollHorizon, r.done)
		// Loop regardless of what Drain returned: a fresh snapshot is always
		// taken next iteration, so a missed wake only costs one horizon.
	}
}

func (r *Registry) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// snapshot computes the current cumulative view: every Completed worker's
// CompletedTask, every Failed worker's FailedTask, and every pending
// permission across all Active workers' brokers.
func (r *Registry) snapshot() fleet.WorkerStateSnapshot {
	r.mu.Lock()
	workers := make([]*worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	var snap fleet.WorkerStateSnapshot
	for _, w := range workers {
		v := w.view()
		switch v.State {
		case fleet.StateCompleted:
			if v.Completion != nil {
				snap.Completed = append(snap.Completed, *v.Completion)
			}
		case fleet.StateFailed:
			if v.Failure != nil {
				snap.Failed = append(snap.Failed, *v.Failure)
			}
		case fleet.StateActive:
			if b := w.currentBroker(); b != nil {
				snap.PendingPermissions = append(snap.PendingPermissions, b.PendingSnapshot()...)
			}
		}
	}
	return snap
}
