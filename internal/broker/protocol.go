// Package broker implements the per-worker permission broker: a Unix domain
// socket endpoint that accepts any number of worker connections over its
// lifetime, each of which may carry many newline-delimited JSON permission
// requests/decisions sequentially, and enforces the broker's I/O timeout and
// per-broker request cap.
package broker

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"

	"github.com/worklet/fleet/pkg/fleet"
)

// maxLineBytes bounds a single wire message. A line longer than this stops
// the scanner, and the broker closes that connection without writing a
// decision.
const maxLineBytes = 1 << 20 // 1 MiB

// encodeRequest frames req as a single newline-terminated JSON line.
func encodeRequest(req fleet.PermissionRequest) ([]byte, error) {
	return encodeLine(req)
}

// encodeDecision frames dec as a single newline-terminated JSON line.
func encodeDecision(dec fleet.PermissionDecision) ([]byte, error) {
	return encodeLine(dec)
}

func encodeLine(v any) ([]byte, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("broker: marshal wire payload: %w", err)
	}
	return append(b, '\n'), nil
}

// decodeRequest parses a single line as a PermissionRequest.
func decodeRequest(line []byte) (fleet.PermissionRequest, error) {
	var req fleet.PermissionRequest
	if err := sonic.Unmarshal(line, &req); err != nil {
		return fleet.PermissionRequest{}, fmt.Errorf("broker: malformed permission request: %w", err)
	}
	if req.RequestID == "" || req.Tool == "" {
		return fleet.PermissionRequest{}, fmt.Errorf("broker: permission request missing request_id or tool")
	}
	return req, nil
}

// newLineScanner builds a bufio.Scanner sized for maxLineBytes, matching the
// large-buffer scanner pattern used for line-delimited IPC elsewhere in this
// codebase's lineage.
func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}

// ioDeadline is the per-operation deadline applied to every broker read and
// write (spec.md Section 4.2, 30s I/O timeout).
func ioDeadline(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}
