package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worklet/fleet/pkg/fleet"
)

// writeMockWorker writes a worker script that connects to PERM_SOCKET_PATH,
// optionally requests a permission, waits for the decision, and exits
// according to the body template.
func writeMockWorker(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mockworker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func testConfig(t *testing.T, command string) Config {
	return Config{
		MaxActiveWorkers:     2,
		MaxRequestsPerBroker: 10,
		IOTimeout:            2 * time.Second,
		PollHorizon:          100 * time.Millisecond,
		SocketDir:            t.TempDir(),
		OutputDir:            t.TempDir(),
		WorkerCommand:        command,
	}
}

func TestRegistrySpawnAndWaitCompletion(t *testing.T) {
	worker := writeMockWorker(t, `echo '{"session_id":"sess-abc"}'
exit 0
`)
	r := New(testConfig(t, worker))
	defer r.Close()

	id, err := r.Spawn(context.Background(), "claude-code", fleet.LaunchOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snap, err := r.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Completed, 1)
	require.Equal(t, id, snap.Completed[0].WorkerID)
	require.Equal(t, "sess-abc", snap.Completed[0].SessionID)

	view, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, fleet.StateCompleted, view.State)
}

func TestRegistrySpawnRejectsOverCapacity(t *testing.T) {
	worker := writeMockWorker(t, `sleep 5
`)
	cfg := testConfig(t, worker)
	cfg.MaxActiveWorkers = 1
	r := New(cfg)
	defer r.Close()

	_, err := r.Spawn(context.Background(), "claude-code", fleet.LaunchOptions{})
	require.NoError(t, err)

	_, err = r.Spawn(context.Background(), "claude-code", fleet.LaunchOptions{})
	require.ErrorIs(t, err, fleet.ErrCapacityExceeded)
}

func TestRegistryWaitSurfacesPendingPermission(t *testing.T) {
	worker := writeMockWorker(t, `python3 - <<'EOF'
import json, os, socket
s = socket.socket(socket.AF_UNIX, socket.SOCK_STREAM)
s.connect(os.environ["PERM_SOCKET_PATH"])
req = {"request_id": "r1", "tool": "bash", "input": {"command": "ls"}}
s.sendall((json.dumps(req) + "\n").encode())
buf = s.recv(4096)
print(json.dumps({"session_id": "sess-xyz"}))
EOF
exit 0
`)
	if _, err := os.Stat("/usr/bin/python3"); err != nil {
		t.Skip("python3 not available for this IPC fixture")
	}

	r := New(testConfig(t, worker))
	defer r.Close()

	id, err := r.Spawn(context.Background(), "claude-code", fleet.LaunchOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := r.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, snap.PendingPermissions, 1)
	require.Equal(t, "r1", snap.PendingPermissions[0].RequestID)

	require.NoError(t, r.Approve(id, "r1"))

	snap, err = r.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Completed, 1)
}

func TestRegistryDecideUnknownWorker(t *testing.T) {
	worker := writeMockWorker(t, `exit 0`)
	r := New(testConfig(t, worker))
	defer r.Close()

	err := r.Decide("missing", fleet.PermissionDecision{RequestID: "r1", Allow: true})
	require.ErrorIs(t, err, fleet.ErrNotFound)
}
