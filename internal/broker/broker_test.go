package broker

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"github.com/worklet/fleet/internal/events"
	"github.com/worklet/fleet/pkg/fleet"
)

func dialWorker(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", socketPath, err)
	return nil
}

func TestBrokerRoundTripsPermissionDecision(t *testing.T) {
	core := events.NewCore()
	b := New("w-roundtrip", t.TempDir(), 100, 2*time.Second, core)
	require.NoError(t, b.Listen())
	defer b.Close()

	conn := dialWorker(t, b.SocketPath())
	defer conn.Close()

	reqLine, err := sonic.Marshal(fleet.PermissionRequest{
		RequestID: "r1",
		Tool:      "bash",
		Input:     map[string]any{"command": "ls"},
	})
	require.NoError(t, err)
	_, err = conn.Write(append(reqLine, '\n'))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))

	done := make(chan struct{})
	defer close(done)
	evs := core.Drain(time.Second, done)
	require.Len(t, evs, 1)
	require.Equal(t, events.KindPermissionRequested, evs[0].Kind)
	require.Equal(t, "r1", evs[0].Request.RequestID)

	require.NoError(t, b.Decide(fleet.PermissionDecision{RequestID: "r1", Allow: true}))

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var dec fleet.PermissionDecision
	require.NoError(t, sonic.Unmarshal(line, &dec))
	require.Equal(t, "r1", dec.RequestID)
	require.True(t, dec.Allow)
	require.Equal(t, map[string]any{"command": "ls"}, dec.UpdatedInput)
}

func TestBrokerDeniesMalformedLine(t *testing.T) {
	core := events.NewCore()
	b := New("w-malformed", t.TempDir(), 100, 2*time.Second, core)
	require.NoError(t, b.Listen())
	defer b.Close()

	conn := dialWorker(t, b.SocketPath())
	defer conn.Close()

	_, err := conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	done := make(chan struct{})
	defer close(done)
	evs := core.Drain(200*time.Millisecond, done)
	require.Empty(t, evs)
}

// TestBrokerServicesPerRequestReconnect mirrors the original worker client
// (permission_proxy.py's request_permission), which opens a brand-new
// connection for every single permission request instead of keeping one
// open. A broker that only ever accepts its first connection would hang
// the second request forever.
func TestBrokerServicesPerRequestReconnect(t *testing.T) {
	core := events.NewCore()
	b := New("w-reconnect", t.TempDir(), 100, 2*time.Second, core)
	require.NoError(t, b.Listen())
	defer b.Close()

	done := make(chan struct{})
	defer close(done)

	for _, id := range []string{"r1", "r2", "r3"} {
		conn := dialWorker(t, b.SocketPath())

		reqLine, err := sonic.Marshal(fleet.PermissionRequest{RequestID: id, Tool: "bash"})
		require.NoError(t, err)
		_, err = conn.Write(append(reqLine, '\n'))
		require.NoError(t, err)

		evs := core.Drain(time.Second, done)
		require.Len(t, evs, 1)
		require.Equal(t, id, evs[0].Request.RequestID)

		require.NoError(t, b.Decide(fleet.PermissionDecision{RequestID: id, Allow: true}))

		conn.SetReadDeadline(time.Now().Add(time.Second))
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		require.NoError(t, err)

		var dec fleet.PermissionDecision
		require.NoError(t, sonic.Unmarshal(line, &dec))
		require.Equal(t, id, dec.RequestID)
		require.True(t, dec.Allow)

		conn.Close()
	}
}

func TestBrokerDeniesOverRateLimit(t *testing.T) {
	core := events.NewCore()
	b := New("w-ratelimit", t.TempDir(), 1, 2*time.Second, core)
	require.NoError(t, b.Listen())
	defer b.Close()

	conn := dialWorker(t, b.SocketPath())
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for i, id := range []string{"r1", "r2"} {
		line, err := sonic.Marshal(fleet.PermissionRequest{RequestID: id, Tool: "bash"})
		require.NoError(t, err)
		_, err = conn.Write(append(line, '\n'))
		require.NoError(t, err)
		_ = i
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var dec fleet.PermissionDecision
	require.NoError(t, sonic.Unmarshal(line, &dec))
	require.Equal(t, "r2", dec.RequestID)
	require.False(t, dec.Allow)
}
