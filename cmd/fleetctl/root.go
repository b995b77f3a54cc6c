package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worklet/fleet/internal/common/config"
	"github.com/worklet/fleet/internal/common/logger"
	"github.com/worklet/fleet/pkg/fleet"
)

var (
	cfg *config.Config
	log *logger.Logger
	sup *fleet.Supervisor
)

var rootCmd = &cobra.Command{
	Use:           "fleetctl",
	Short:         "Operate a worker fleet: spawn agent subprocesses, wait on events, decide permissions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		l, err := logger.NewLogger(logger.LoggingConfig{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			OutputPath: cfg.Logging.OutputPath,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		logger.SetDefault(l)

		sup = fleet.NewSupervisor(fleet.SupervisorConfig{
			MaxActiveWorkers:     cfg.Fleet.MaxActiveWorkers,
			MaxRequestsPerBroker: cfg.Fleet.MaxRequestsPerBroker,
			IOTimeout:            cfg.Fleet.IOTimeout(),
			PollHorizon:          cfg.Fleet.PollHorizon(),
			SocketDir:            cfg.Fleet.SocketDir,
			OutputDir:            cfg.Fleet.OutputDir,
			WorkerCommand:        cfg.Fleet.WorkerCommand,
			LedgerPath:           cfg.Fleet.LedgerPath,
		})
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
