package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/worklet/fleet/pkg/fleet"
)

// Resume transitions a Completed worker back to Active, relaunching its
// subprocess with opts.SessionID set to the prior run's session so the
// worker can pick the conversation back up. Returns fleet.ErrNotFound if
// workerID is unknown, fleet.ErrWrongState if it is not Completed, and
// fleet.ErrCapacityExceeded if N_max Active workers are already running.
func (r *Registry) Resume(ctx context.Context, workerID string, opts fleet.LaunchOptions) error {
	r.mu.Lock()
	w, ok := r.workers[workerID]
	if !ok {
		r.mu.Unlock()
		return fleet.ErrNotFound
	}
	r.mu.Unlock()

	w.mu.Lock()
	if w.state != fleet.StateCompleted {
		w.mu.Unlock()
		return fleet.ErrWrongState
	}
	completion := w.completion
	w.mu.Unlock()

	if completion == nil || completion.SessionID == "" {
		return fleet.ErrInvalidSession
	}

	r.mu.Lock()
	if r.active >= r.maxActive {
		r.mu.Unlock()
		return fleet.ErrCapacityExceeded
	}
	r.active++
	r.mu.Unlock()

	opts.SessionID = completion.SessionID
	nw, err := r.launch(ctx, workerID, w.agentType, opts)
	if err != nil {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
		return err
	}

	w.markActive(nw.broker, nw.handle, nw.cancel)
	go r.watch(w)

	r.log.WithWorkerID(workerID).Info("worker resumed", zap.String("sessionId", completion.SessionID))
	return nil
}
