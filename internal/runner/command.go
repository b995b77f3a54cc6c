// Package runner spawns and supervises worker subprocesses: it assembles the
// argument vector from LaunchOptions, injects the broker socket path and
// worker ID into the environment, captures output, and classifies failures.
package runner

import (
	"fmt"
	"strconv"

	"github.com/worklet/fleet/pkg/fleet"
)

// EnvSocketPath and EnvWorkerID are the environment variable names a runner
// injects into every worker subprocess (spec.md Section 4.3).
const (
	EnvSocketPath = "PERM_SOCKET_PATH"
	EnvWorkerID   = "WORKER_ID"
)

// BuildArgs assembles the worker command-line argument vector from opts,
// following the option-chaining builder pattern used to translate launch
// options into argv in this codebase's agent-command lineage: each
// recognized option appends its own flag pair, in a fixed, stable order.
func BuildArgs(opts fleet.LaunchOptions) []string {
	var args []string

	if opts.AgentType != "" {
		args = append(args, "--agent-type", opts.AgentType)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Temperature != nil {
		args = append(args, "--temperature", strconv.FormatFloat(*opts.Temperature, 'f', -1, 64))
	}
	if opts.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(opts.MaxTokens))
	}
	if opts.Thinking {
		args = append(args, "--thinking")
	}
	if opts.TopP != nil {
		args = append(args, "--top-p", strconv.FormatFloat(*opts.TopP, 'f', -1, 64))
	}
	if opts.TopK != nil {
		args = append(args, "--top-k", strconv.Itoa(*opts.TopK))
	}
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}

	return args
}

// validateOptions rejects option combinations the worker cannot honor, kept
// separate from BuildArgs so a future caller can validate before spawning a
// subprocess at all.
func validateOptions(opts fleet.LaunchOptions) error {
	if opts.MaxTokens < 0 {
		return fmt.Errorf("runner: maxTokens must be non-negative, got %d", opts.MaxTokens)
	}
	return nil
}
