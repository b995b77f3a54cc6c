package outputwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestWatcherEmitsWorkerIDOnStdoutWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{OutputDir: dir, DebounceDur: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	changes, err := w.Start()
	require.NoError(t, err)

	path := filepath.Join(dir, "worker-1.stdout")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	select {
	case workerID := <-changes:
		require.Equal(t, "worker-1", workerID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification received")
	}
}

func TestWatcherDebouncesBurstsOfWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{OutputDir: dir, DebounceDur: 100 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	changes, err := w.Start()
	require.NoError(t, err)

	path := filepath.Join(dir, "worker-2.stdout")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("chunk"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case workerID := <-changes:
		require.Equal(t, "worker-2", workerID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification received")
	}

	select {
	case workerID := <-changes:
		t.Fatalf("unexpected second notification for %s", workerID)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestIsRelevantIgnoresNonStdoutFiles(t *testing.T) {
	require.False(t, isRelevant(fsnotify.Event{Name: "/tmp/worker-1.log", Op: fsnotify.Write}))
	require.False(t, isRelevant(fsnotify.Event{Name: "/tmp/worker-1.stdout", Op: fsnotify.Remove}))
	require.True(t, isRelevant(fsnotify.Event{Name: "/tmp/worker-1.stdout", Op: fsnotify.Write}))
}

func TestWorkerIDFromPath(t *testing.T) {
	require.Equal(t, "abc-123", workerIDFromPath("/var/run/fleet/abc-123.stdout"))
	require.Equal(t, "abc-123", workerIDFromPath("abc-123.stdout"))
}
