// Package config provides configuration management for the fleet manager.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the fleet manager.
type Config struct {
	Fleet   FleetConfig   `mapstructure:"fleet"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// FleetConfig holds registry/broker/runner tunables.
type FleetConfig struct {
	// MaxActiveWorkers is the hard concurrency cap (N_max).
	MaxActiveWorkers int `mapstructure:"maxActiveWorkers"`

	// MaxRequestsPerBroker is the per-broker served-request cap (R_max).
	MaxRequestsPerBroker int `mapstructure:"maxRequestsPerBroker"`

	// IOTimeoutSeconds bounds every broker read/write.
	IOTimeoutSeconds int `mapstructure:"ioTimeoutSeconds"`

	// PollHorizonSeconds bounds how long wait() may sleep without re-checking state.
	PollHorizonSeconds int `mapstructure:"pollHorizonSeconds"`

	// SocketDir is the directory broker endpoints are created under.
	SocketDir string `mapstructure:"socketDir"`

	// OutputDir is the directory per-worker stdout files are persisted under.
	OutputDir string `mapstructure:"outputDir"`

	// WorkerCommand is the executable used to launch worker subprocesses.
	WorkerCommand string `mapstructure:"workerCommand"`

	// LedgerPath is where the write-only termination diagnostic ledger is
	// stored. Empty disables the ledger entirely.
	LedgerPath string `mapstructure:"ledgerPath"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// IOTimeout returns the broker I/O timeout as a time.Duration.
func (f *FleetConfig) IOTimeout() time.Duration {
	return time.Duration(f.IOTimeoutSeconds) * time.Second
}

// PollHorizon returns the wait() poll horizon as a time.Duration.
func (f *FleetConfig) PollHorizon() time.Duration {
	return time.Duration(f.PollHorizonSeconds) * time.Second
}

// Load reads configuration from environment variables (FLEET_*), an optional
// fleet.yaml in the working directory, and falls back to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("fleet")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.fleet")

	v.SetEnvPrefix("FLEET")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fleet.maxActiveWorkers", 10)
	v.SetDefault("fleet.maxRequestsPerBroker", 100)
	v.SetDefault("fleet.ioTimeoutSeconds", 30)
	v.SetDefault("fleet.pollHorizonSeconds", 5)
	v.SetDefault("fleet.socketDir", os.TempDir())
	v.SetDefault("fleet.outputDir", defaultOutputDir())
	v.SetDefault("fleet.workerCommand", "fleet-worker")
	v.SetDefault("fleet.ledgerPath", defaultLedgerPath())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home + "/.fleet/runs"
}

func defaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "fleet-ledger.db")
	}
	return filepath.Join(home, ".fleet", "ledger.db")
}

// detectDefaultLogFormat mirrors the logger package's own detection so config
// defaults and the logger agree outside of an explicit override.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("FLEET_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}
