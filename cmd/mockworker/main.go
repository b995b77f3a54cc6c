// Command mockworker is a worker binary that speaks the fleet's permission
// broker protocol over a Unix socket. It is a stand-in worker a local
// fleetctl demo run can launch in place of a real agent (the registry tests
// use their own shell-script workers): it requests permission for one
// simulated tool call, waits for a
// decision, and reports a session_id on success so resume() has something to
// thread through.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/worklet/fleet/internal/runner"
	"github.com/worklet/fleet/pkg/fleet"
)

func main() {
	socketPath := os.Getenv(runner.EnvSocketPath)
	workerID := os.Getenv(runner.EnvWorkerID)
	if workerID == "" {
		workerID = "unknown-worker"
	}

	scenario := parseScenarioFlag(os.Args)

	if scenario == "crash" {
		fmt.Fprintln(os.Stderr, "simulated panic: tool invocation failed")
		os.Exit(1)
	}

	sessionID := fmt.Sprintf("mock-session-%s", uuid.NewString())

	if scenario == "no-permission" {
		printResult(sessionID)
		return
	}

	allowed, err := requestPermission(socketPath, workerID, "bash", map[string]any{"command": "ls -la"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "permission request failed: %v\n", err)
		os.Exit(1)
	}
	if !allowed {
		fmt.Fprintln(os.Stderr, "permission denied for requested tool")
		os.Exit(1)
	}

	printResult(sessionID)
}

func printResult(sessionID string) {
	out, _ := sonic.Marshal(map[string]string{"session_id": sessionID})
	fmt.Println(string(out))
}

// parseScenarioFlag reads a leading --scenario=<name> argument, defaulting
// to the happy path of a single permission round-trip.
func parseScenarioFlag(args []string) string {
	for _, a := range args[1:] {
		if strings.HasPrefix(a, "--scenario=") {
			return strings.TrimPrefix(a, "--scenario=")
		}
	}
	return "default"
}

// requestPermission dials the broker socket, sends one PermissionRequest,
// and blocks for the matching PermissionDecision line.
func requestPermission(socketPath, workerID, tool string, input map[string]any) (bool, error) {
	if socketPath == "" {
		return false, fmt.Errorf("no %s set", runner.EnvSocketPath)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false, fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	req := fleet.PermissionRequest{
		RequestID: fmt.Sprintf("req-%s", uuid.NewString()),
		WorkerID:  workerID,
		Tool:      tool,
		Input:     input,
	}
	line, err := sonic.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return false, fmt.Errorf("write request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	reader := bufio.NewReader(conn)
	respLine, err := reader.ReadBytes('\n')
	if err != nil {
		return false, fmt.Errorf("read decision: %w", err)
	}

	var dec fleet.PermissionDecision
	if err := sonic.Unmarshal(respLine, &dec); err != nil {
		return false, fmt.Errorf("decode decision: %w", err)
	}
	return dec.Allow, nil
}
