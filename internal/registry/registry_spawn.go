package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/worklet/fleet/internal/broker"
	"github.com/worklet/fleet/internal/common/appctx"
	"github.com/worklet/fleet/pkg/fleet"
)

// Spawn creates a new worker: it reserves a concurrency slot, opens a
// permission broker, launches the subprocess, and returns the worker's ID
// once the subprocess has started. It returns fleet.ErrCapacityExceeded if
// N_max Active workers are already running.
func (r *Registry) Spawn(ctx context.Context, agentType string, opts fleet.LaunchOptions) (string, error) {
	if err := r.checker.EnsureInstalled(r.workerCommand); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.active >= r.maxActive {
		r.mu.Unlock()
		return "", fleet.ErrCapacityExceeded
	}
	r.active++
	r.mu.Unlock()

	id := newWorkerID()
	w, err := r.launch(ctx, id, agentType, opts)
	if err != nil {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
		return "", err
	}

	r.mu.Lock()
	r.workers[id] = w
	r.mu.Unlock()

	go r.watch(w)

	r.log.WithWorkerID(id).Info("worker spawned", zap.String("agentType", agentType))
	return id, nil
}

// launch opens the broker and starts the subprocess for a freshly minted (or
// resumed) worker ID, returning the in-memory worker record without
// registering it — callers decide whether to insert or replace.
//
// The subprocess is started on a context detached from the caller's ctx and
// bound instead to the registry's own shutdown channel: ctx is request-scoped
// (it dies when Spawn/Resume returns its response) but the worker it starts
// must keep running long after that, until it exits on its own or the
// registry shuts down. Detached is given timeout <= 0 because the runner
// imposes no wall-clock timeout of its own.
func (r *Registry) launch(ctx context.Context, id, agentType string, opts fleet.LaunchOptions) (*worker, error) {
	if opts.AgentType == "" {
		opts.AgentType = agentType
	}

	b := broker.New(id, r.socketDir, r.maxRequestsPerBroker, r.ioTimeout, r.core)
	if err := b.Listen(); err != nil {
		return nil, fmt.Errorf("registry: open broker for %s: %w", id, err)
	}

	runCtx, cancel := appctx.Detached(ctx, r.done, 0)

	h, err := r.runner.Start(runCtx, id, opts, b.SocketPath())
	if err != nil {
		cancel()
		b.Close()
		return nil, fmt.Errorf("registry: start worker %s: %w", id, err)
	}

	return newWorker(id, agentType, b, h, cancel), nil
}
