// Package events implements the process-wide event core: a single unbounded
// FIFO that carries worker completion, failure, and permission-request
// notifications from brokers and runners to whoever currently holds wait().
package events

import "github.com/worklet/fleet/pkg/fleet"

// Kind tags the three Event variants (spec.md Section 3, "Event").
type Kind int

const (
	KindCompletion Kind = iota
	KindFailure
	KindPermissionRequested
)

// Event is a tagged variant, never collapsed into a single optional-field
// record (spec.md Section 9, "Sum types over ad-hoc flags").
type Event struct {
	Kind     Kind
	WorkerID string

	Completed *fleet.CompletedTask        // set iff Kind == KindCompletion
	Failed    *fleet.FailedTask           // set iff Kind == KindFailure
	Request   *fleet.PermissionRequest    // set iff Kind == KindPermissionRequested
}

// NewCompletion builds a Completion event.
func NewCompletion(workerID string, task *fleet.CompletedTask) Event {
	return Event{Kind: KindCompletion, WorkerID: workerID, Completed: task}
}

// NewFailure builds a Failure event.
func NewFailure(workerID string, task *fleet.FailedTask) Event {
	return Event{Kind: KindFailure, WorkerID: workerID, Failed: task}
}

// NewPermissionRequested builds a PermissionRequested event.
func NewPermissionRequested(workerID string, req *fleet.PermissionRequest) Event {
	return Event{Kind: KindPermissionRequested, WorkerID: workerID, Request: req}
}
