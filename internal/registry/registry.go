package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worklet/fleet/internal/broker"
	"github.com/worklet/fleet/internal/common/logger"
	"github.com/worklet/fleet/internal/discovery"
	"github.com/worklet/fleet/internal/events"
	"github.com/worklet/fleet/internal/ledger"
	"github.com/worklet/fleet/internal/runner"
	"github.com/worklet/fleet/pkg/fleet"
)

// Registry tracks every worker this process has spawned, enforces the
// concurrency cap, and owns the shared event core that wait() drains.
type Registry struct {
	mu       sync.Mutex
	workers  map[string]*worker
	active   int
	maxActive int

	maxRequestsPerBroker int
	ioTimeout            time.Duration
	pollHorizon          time.Duration
	socketDir            string

	runner  *runner.Runner
	core    *events.Core
	log     *logger.Logger
	checker *discovery.Checker
	ledger  *ledger.Ledger

	workerCommand string

	done chan struct{}
}

// Config bundles the tunables a Registry needs; supplied by the config
// package's FleetConfig at wiring time. LedgerPath is optional: when empty,
// terminations are not persisted anywhere (only held in memory).
type Config struct {
	MaxActiveWorkers     int
	MaxRequestsPerBroker int
	IOTimeout            time.Duration
	PollHorizon          time.Duration
	SocketDir            string
	OutputDir            string
	WorkerCommand        string
	LedgerPath           string
}

// New constructs a Registry ready to accept Spawn calls.
func New(cfg Config) *Registry {
	r := &Registry{
		workers:              make(map[string]*worker),
		maxActive:            cfg.MaxActiveWorkers,
		maxRequestsPerBroker: cfg.MaxRequestsPerBroker,
		ioTimeout:            cfg.IOTimeout,
		pollHorizon:          cfg.PollHorizon,
		socketDir:            cfg.SocketDir,
		runner:               runner.New(cfg.WorkerCommand, cfg.OutputDir),
		core:                 events.NewCore(),
		log:                  logger.Default(),
		checker:              discovery.NewChecker(),
		workerCommand:        cfg.WorkerCommand,
		done:                 make(chan struct{}),
	}

	if cfg.LedgerPath != "" {
		if l, err := ledger.Open(cfg.LedgerPath); err == nil {
			r.ledger = l
		} else {
			r.log.Warn("failed to open termination ledger, continuing without it: " + err.Error())
		}
	}

	return r
}

// Close cancels the detached context of every running worker subprocess,
// unblocks any in-flight Wait call, and closes the termination ledger if one
// is open. Spawn and Resume do not check whether the registry is closed.
func (r *Registry) Close() {
	close(r.done)
	if r.ledger != nil {
		r.ledger.Close()
	}
}

// Get returns a read-only view of workerID, or fleet.ErrNotFound.
func (r *Registry) Get(workerID string) (fleet.WorkerView, error) {
	r.mu.Lock()
	w, ok := r.workers[workerID]
	r.mu.Unlock()
	if !ok {
		return fleet.WorkerView{}, fleet.ErrNotFound
	}
	return w.view(), nil
}

// List returns a view of every tracked worker.
func (r *Registry) List() []fleet.WorkerView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fleet.WorkerView, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.view())
	}
	return out
}

func newWorkerID() string {
	return uuid.NewString()
}

// watch runs in its own goroutine for the lifetime of one subprocess: it
// blocks on Wait(), classifies the result, publishes the corresponding
// event, and releases the worker's concurrency slot.
func (r *Registry) watch(w *worker) {
	h := w.currentHandle()
	rec, waitErr := h.Wait()

	r.mu.Lock()
	r.active--
	r.mu.Unlock()

	b := w.currentBroker()
	if b != nil {
		b.Close()
	}

	if cancel := w.currentCancel(); cancel != nil {
		cancel()
	}

	if rec.ExitCode == 0 {
		task, err := parseCompletedTask(rec)
		if err != nil {
			failed := &fleet.FailedTask{
				WorkerID:                    w.id,
				ExitCode:                    rec.ExitCode,
				ConversationHistoryFilePath: rec.OutputFilePath,
				ErrorHint:                   "success exit but " + err.Error(),
			}
			w.markFailed(failed)
			r.recordFailure(failed)
			r.core.Publish(events.NewFailure(w.id, failed))
			return
		}
		w.markCompleted(task)
		r.recordCompletion(task)
		r.core.Publish(events.NewCompletion(w.id, task))
		return
	}

	if waitErr != nil {
		r.log.WithWorkerID(w.id).Debug("worker process wait error: " + waitErr.Error())
	}
	hint := runner.ClassifyFailure(rec.Stderr, rec.ExitCode)
	failed := &fleet.FailedTask{
		WorkerID:                    w.id,
		ExitCode:                    rec.ExitCode,
		ConversationHistoryFilePath: conversationPathOrEmpty(rec),
		ErrorHint:                   hint,
	}
	w.markFailed(failed)
	r.recordFailure(failed)
	r.core.Publish(events.NewFailure(w.id, failed))
}

// recordCompletion and recordFailure append to the diagnostic ledger when
// one is configured. The ledger is write-only: nothing here ever reads it
// back to make a scheduling decision.
func (r *Registry) recordCompletion(task *fleet.CompletedTask) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordCompletion(*task, time.Now()); err != nil {
		r.log.Warn("ledger: failed to record completion: " + err.Error())
	}
}

func (r *Registry) recordFailure(task *fleet.FailedTask) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordFailure(*task, time.Now()); err != nil {
		r.log.Warn("ledger: failed to record failure: " + err.Error())
	}
}

func conversationPathOrEmpty(rec fleet.CompletionRecord) string {
	if len(rec.Stdout) == 0 {
		return ""
	}
	return rec.OutputFilePath
}

// sessionPayload is the minimal shape a worker's success JSON must carry.
type sessionPayload struct {
	SessionID string `json:"session_id"`
}

func parseCompletedTask(rec fleet.CompletionRecord) (*fleet.CompletedTask, error) {
	var payload sessionPayload
	if err := json.Unmarshal(rec.Stdout, &payload); err != nil {
		return nil, fmt.Errorf("parse worker stdout: %w", err)
	}
	if payload.SessionID == "" {
		return nil, fleet.ErrInvalidSession
	}
	return &fleet.CompletedTask{
		WorkerID:                    rec.WorkerID,
		SessionID:                   payload.SessionID,
		ConversationHistoryFilePath: rec.OutputFilePath,
	}, nil
}

