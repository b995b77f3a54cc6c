package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worklet/fleet/pkg/fleet"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestRunnerCapturesSuccessfulExit(t *testing.T) {
	script := writeScript(t, `echo "{\"session_id\":\"sess-1\"}"
echo "on stderr" >&2
exit 0
`)
	r := New(script, t.TempDir())
	h, err := r.Start(context.Background(), "w1", fleet.LaunchOptions{}, "/tmp/unused.sock")
	require.NoError(t, err)

	rec, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, 0, rec.ExitCode)
	require.Contains(t, string(rec.Stdout), "sess-1")
	require.Contains(t, string(rec.Stderr), "on stderr")

	persisted, err := os.ReadFile(rec.OutputFilePath)
	require.NoError(t, err)
	require.Equal(t, rec.Stdout, persisted)
}

func TestRunnerCapturesNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "permission denied" >&2
exit 3
`)
	r := New(script, t.TempDir())
	h, err := r.Start(context.Background(), "w2", fleet.LaunchOptions{}, "/tmp/unused.sock")
	require.NoError(t, err)

	rec, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, 3, rec.ExitCode)
	require.Equal(t, "Permission denied.", ClassifyFailure(rec.Stderr, rec.ExitCode))
}

func TestRunnerInjectsEnvironment(t *testing.T) {
	script := writeScript(t, `echo "$WORKER_ID:$PERM_SOCKET_PATH"
`)
	r := New(script, t.TempDir())
	h, err := r.Start(context.Background(), "w3", fleet.LaunchOptions{}, "/tmp/sock3")
	require.NoError(t, err)

	rec, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, "w3:/tmp/sock3\n", string(rec.Stdout))
}

func TestRunnerStopKillsLongRunningProcess(t *testing.T) {
	script := writeScript(t, `trap '' TERM
sleep 30
`)
	r := New(script, t.TempDir())
	h, err := r.Start(context.Background(), "w4", fleet.LaunchOptions{}, "/tmp/unused.sock")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, h.Stop())

	waitDone := make(chan struct{})
	go func() {
		h.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("worker process group was not killed")
	}
}
