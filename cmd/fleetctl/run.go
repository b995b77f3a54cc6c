package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/worklet/fleet/internal/debugtool"
	"github.com/worklet/fleet/internal/outputwatch"
	"github.com/worklet/fleet/pkg/fleet"
)

var (
	runAgentType   string
	runCount       int
	runModel       string
	runAutoApprove bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Spawn workers and drive them to completion, auto-deciding permission requests",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAgentType, "agent-type", "claude-code", "agent type passed to each worker")
	runCmd.Flags().IntVar(&runCount, "count", 1, "number of workers to spawn")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override for each worker")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "automatically approve every permission request instead of denying")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer sup.Close()

	if watcher, err := outputwatch.New(outputwatch.DefaultConfig(cfg.Fleet.OutputDir)); err == nil {
		settled, err := watcher.Start()
		if err == nil {
			defer watcher.Stop()
			go func() {
				for workerID := range settled {
					log.Info("worker output settled on disk", zap.String("workerId", workerID))
				}
			}()
		}
	}

	ids := make([]string, 0, runCount)
	for i := 0; i < runCount; i++ {
		id, err := sup.Spawn(ctx, runAgentType, fleet.LaunchOptions{Model: runModel})
		if err != nil {
			return fmt.Errorf("spawn worker %d: %w", i, err)
		}
		ids = append(ids, id)
		log.Info("spawned worker", zap.String("workerId", id))
	}

	// Wait returns a cumulative snapshot: once a worker reaches a terminal
	// state it stays in Completed/Failed on every later call until resumed.
	// seenTerminal tracks which ones we've already logged and counted so a
	// worker settling in round 1 isn't subtracted from pending again in
	// round 2.
	seenTerminal := make(map[string]bool, len(ids))
	var prevSnap fleet.WorkerStateSnapshot
	pending := len(ids)
	for pending > 0 {
		snap, err := sup.Wait(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}

		if diff, err := debugtool.DiffSnapshots(prevSnap, snap); err == nil {
			log.Debug("snapshot changed", zap.String("diff", diff))
		}
		prevSnap = snap

		for _, c := range snap.Completed {
			if seenTerminal[c.WorkerID] {
				continue
			}
			seenTerminal[c.WorkerID] = true
			log.Info("worker completed", zap.String("workerId", c.WorkerID), zap.String("sessionId", c.SessionID))
			pending--
		}
		for _, f := range snap.Failed {
			if seenTerminal[f.WorkerID] {
				continue
			}
			seenTerminal[f.WorkerID] = true
			log.Warn("worker failed", zap.String("workerId", f.WorkerID), zap.Int("exitCode", f.ExitCode), zap.String("hint", f.ErrorHint))
			pending--
		}
		for _, p := range snap.PendingPermissions {
			if runAutoApprove {
				log.Info("auto-approving permission request", zap.String("workerId", p.WorkerID), zap.String("tool", p.Tool))
				if err := sup.Approve(p.WorkerID, p.RequestID); err != nil {
					log.Error("approve failed", zap.Error(err))
				}
				continue
			}
			log.Info("auto-denying permission request", zap.String("workerId", p.WorkerID), zap.String("tool", p.Tool))
			if err := sup.Deny(p.WorkerID, p.RequestID, "fleetctl run: no interactive approver configured"); err != nil {
				log.Error("deny failed", zap.Error(err))
			}
		}
	}

	fmt.Printf("all %d worker(s) reached a terminal state\n", len(ids))
	return nil
}
