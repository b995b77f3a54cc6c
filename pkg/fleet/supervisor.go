package fleet

import (
	"context"
	"time"

	"github.com/worklet/fleet/internal/registry"
)

// Supervisor is the public entry point to the worker fleet. It delegates
// every operation to an internal registry; callers outside this module
// never construct or touch a registry.Registry directly.
type Supervisor struct {
	reg *registry.Registry
}

// SupervisorConfig mirrors the config package's FleetConfig without
// depending on viper or mapstructure tags — this is the boundary type
// transports (CLI, RPC) actually construct.
type SupervisorConfig struct {
	MaxActiveWorkers     int
	MaxRequestsPerBroker int
	IOTimeout            time.Duration
	PollHorizon          time.Duration
	SocketDir            string
	OutputDir            string
	WorkerCommand        string
	LedgerPath           string
}

// NewSupervisor constructs a Supervisor ready to spawn workers.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	return &Supervisor{reg: registry.New(registry.Config{
		MaxActiveWorkers:     cfg.MaxActiveWorkers,
		MaxRequestsPerBroker: cfg.MaxRequestsPerBroker,
		IOTimeout:            cfg.IOTimeout,
		PollHorizon:          cfg.PollHorizon,
		SocketDir:            cfg.SocketDir,
		OutputDir:            cfg.OutputDir,
		WorkerCommand:        cfg.WorkerCommand,
		LedgerPath:           cfg.LedgerPath,
	})}
}

// Spawn launches a new worker of agentType with opts, returning its ID.
func (s *Supervisor) Spawn(ctx context.Context, agentType string, opts LaunchOptions) (string, error) {
	return s.reg.Spawn(ctx, agentType, opts)
}

// Resume relaunches a Completed worker, continuing its prior session.
func (s *Supervisor) Resume(ctx context.Context, workerID string, opts LaunchOptions) error {
	return s.reg.Resume(ctx, workerID, opts)
}

// Wait blocks for the next actionable state change across the whole fleet.
func (s *Supervisor) Wait(ctx context.Context) (WorkerStateSnapshot, error) {
	return s.reg.Wait(ctx)
}

// Approve allows a pending permission request.
func (s *Supervisor) Approve(workerID, requestID string) error {
	return s.reg.Approve(workerID, requestID)
}

// Deny rejects a pending permission request with an optional message.
func (s *Supervisor) Deny(workerID, requestID, message string) error {
	return s.reg.Deny(workerID, requestID, message)
}

// Get returns a read-only view of a single worker.
func (s *Supervisor) Get(workerID string) (WorkerView, error) {
	return s.reg.Get(workerID)
}

// List returns a read-only view of every tracked worker.
func (s *Supervisor) List() []WorkerView {
	return s.reg.List()
}

// Close releases the supervisor's resources and unblocks any in-flight Wait.
func (s *Supervisor) Close() {
	s.reg.Close()
}
