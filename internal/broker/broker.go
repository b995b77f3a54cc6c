package broker

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/worklet/fleet/internal/common/logger"
	"github.com/worklet/fleet/internal/events"
	"github.com/worklet/fleet/pkg/fleet"
)

// Broker owns one worker's Unix domain socket endpoint. It accepts any
// number of inbound connections over its lifetime — the worker it talks to
// is grounded on opening a fresh connection per permission call rather than
// holding one open (permission_proxy.py's request_permission calls
// asyncio.open_unix_connection on every request) — and each connection may
// in turn carry many requests sequentially. It decodes PermissionRequest
// lines off whichever connection carried them, parks each in a pendingSet,
// and publishes a PermissionRequested event for each onto the shared Core.
// Decide encodes a PermissionDecision back onto the same connection that
// submitted the request.
type Broker struct {
	workerID   string
	socketPath string
	ioTimeout  time.Duration
	core       *events.Core
	log        *logger.Logger

	listener net.Listener

	mu          sync.Mutex
	conns       map[net.Conn]struct{}
	closed      bool
	connected   chan struct{}
	connectOnce sync.Once

	pending *pendingSet
}

// New constructs a Broker for workerID, rooted at socketDir/<workerID>.sock.
// maxRequests is R_max; ioTimeout bounds every read and write.
func New(workerID, socketDir string, maxRequests int, ioTimeout time.Duration, core *events.Core) *Broker {
	return &Broker{
		workerID:   workerID,
		socketPath: filepath.Join(socketDir, workerID+".sock"),
		ioTimeout:  ioTimeout,
		core:       core,
		log:        logger.Default().WithWorkerID(workerID),
		conns:      make(map[net.Conn]struct{}),
		connected:  make(chan struct{}),
		pending:    newPendingSet(maxRequests),
	}
}

// SocketPath returns the path a runner should inject as PERM_SOCKET_PATH.
func (b *Broker) SocketPath() string { return b.socketPath }

// Listen creates the socket, applies 0600 permissions, and begins accepting
// connections in the background. Grounded on the UDS transport's
// Connect/acceptLoop split: remove any stale socket file, ensure the parent
// directory exists, listen, chmod, then accept asynchronously so Listen
// itself returns immediately.
func (b *Broker) Listen() error {
	if err := os.MkdirAll(filepath.Dir(b.socketPath), 0700); err != nil {
		return fmt.Errorf("broker: ensure socket directory: %w", err)
	}
	if err := os.Remove(b.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("broker: remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", b.socketPath)
	if err != nil {
		return fmt.Errorf("broker: listen on %s: %w", b.socketPath, err)
	}
	if err := os.Chmod(b.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("broker: chmod socket: %w", err)
	}

	b.listener = ln
	go b.acceptLoop()
	return nil
}

// acceptLoop accepts connections until the broker is closed, spawning one
// handler goroutine per connection so a worker that reconnects for every
// permission request (as the original implementation's client does) is
// serviced on every call, not just its first.
func (b *Broker) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				b.log.Warn("broker accept failed", zap.Error(err))
			}
			return
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			conn.Close()
			return
		}
		b.conns[conn] = struct{}{}
		b.mu.Unlock()

		b.connectOnce.Do(func() { close(b.connected) })

		go b.handleConn(conn)
	}
}

// handleConn decodes newline-delimited PermissionRequest messages off conn
// until it closes or times out. Malformed lines and rate-limited requests
// are denied in place rather than killing the connection, per spec.md
// Section 6 ("deny-by-default on malformed input"). Other connections on
// this broker are unaffected by anything that happens here.
func (b *Broker) handleConn(conn net.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	sc := newLineScanner(conn)
	for {
		conn.SetReadDeadline(ioDeadline(b.ioTimeout))
		if !sc.Scan() {
			return
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := decodeRequest(line)
		if err != nil {
			b.log.Warn("malformed permission request denied", zap.Error(err))
			b.writeDecisionOn(conn, fleet.PermissionDecision{
				Allow:   false,
				Message: "invalid_request: " + err.Error(),
			})
			continue
		}
		req.WorkerID = b.workerID

		if _, err := b.pending.add(req, conn); err != nil {
			b.log.Warn("broker request cap exceeded, denying", zap.Error(err))
			b.writeDecisionOn(conn, fleet.PermissionDecision{
				RequestID: req.RequestID,
				Allow:     false,
				Message:   "broker request limit exceeded",
			})
			continue
		}

		b.core.Publish(events.NewPermissionRequested(b.workerID, &req))
	}
}

// Decide resolves requestID with dec and writes the decision back to the
// connection that submitted it. Returns fleet.ErrNotFound if requestID is
// not outstanding on this broker. On allow, UpdatedInput defaults to the
// original request's input verbatim unless the caller already supplied a
// substituted blob (spec.md Section 4.2: "the broker does not alter input").
func (b *Broker) Decide(dec fleet.PermissionDecision) error {
	pr, ok := b.pending.resolve(dec)
	if !ok {
		return fleet.ErrNotFound
	}
	if dec.Allow {
		if dec.UpdatedInput == nil {
			dec.UpdatedInput = pr.req.Input
		}
		dec.Message = ""
	} else {
		dec.UpdatedInput = nil
		if dec.Message == "" {
			dec.Message = "Permission denied by user"
		}
	}
	return b.writeDecisionOn(pr.conn, dec)
}

func (b *Broker) writeDecisionOn(conn net.Conn, dec fleet.PermissionDecision) error {
	line, err := encodeDecision(dec)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(ioDeadline(b.ioTimeout))
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("broker: write decision: %w", err)
	}
	return nil
}

// PendingSnapshot returns every permission request currently awaiting a
// decision on this broker.
func (b *Broker) PendingSnapshot() []fleet.PendingPermissionView {
	return b.pending.snapshot(b.workerID)
}

// Close tears down the listener and every accepted connection, then removes
// the socket file. Safe to call multiple times.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ln := b.listener
	conns := make([]net.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if ln != nil {
		ln.Close()
	}
	if err := os.Remove(b.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("broker: remove socket file: %w", err)
	}
	return nil
}

// WaitConnected blocks until the worker has made its first connection, or
// ctx is done.
func (b *Broker) WaitConnected(ctx context.Context) error {
	select {
	case <-b.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
