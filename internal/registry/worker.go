// Package registry is the fleet's orchestrator: it owns the worker table,
// enforces the concurrency cap, and implements wait() by combining the
// shared event core with a fresh read of every worker's current state.
package registry

import (
	"context"
	"sync"

	"github.com/worklet/fleet/internal/broker"
	"github.com/worklet/fleet/internal/runner"
	"github.com/worklet/fleet/pkg/fleet"
)

// worker is one tracked subprocess: its lifecycle state, its broker, and its
// runner handle. Active while its subprocess runs, then Completed (and
// eligible for resume()) or Failed (terminal).
type worker struct {
	mu sync.Mutex

	id        string
	agentType string
	state     fleet.State

	broker *broker.Broker
	handle *runner.Handle
	cancel context.CancelFunc

	completion *fleet.CompletedTask
	failure    *fleet.FailedTask
}

func newWorker(id, agentType string, b *broker.Broker, h *runner.Handle, cancel context.CancelFunc) *worker {
	return &worker{id: id, agentType: agentType, state: fleet.StateActive, broker: b, handle: h, cancel: cancel}
}

func (w *worker) view() fleet.WorkerView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fleet.WorkerView{
		ID:         w.id,
		AgentType:  w.agentType,
		State:      w.state,
		Completion: w.completion,
		Failure:    w.failure,
	}
}

func (w *worker) markCompleted(task *fleet.CompletedTask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = fleet.StateCompleted
	w.completion = task
	w.failure = nil
}

func (w *worker) markFailed(task *fleet.FailedTask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = fleet.StateFailed
	w.failure = task
	w.completion = nil
}

func (w *worker) markActive(b *broker.Broker, h *runner.Handle, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = fleet.StateActive
	w.broker = b
	w.handle = h
	w.cancel = cancel
	w.completion = nil
	w.failure = nil
}

func (w *worker) currentState() fleet.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *worker) currentBroker() *broker.Broker {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broker
}

func (w *worker) currentHandle() *runner.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle
}

// currentCancel returns the cancel func for the detached context bound to
// this worker's subprocess, so watch() can release it once the subprocess
// exits.
func (w *worker) currentCancel() context.CancelFunc {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel
}
