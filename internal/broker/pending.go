package broker

import (
	"net"
	"sync"

	"github.com/worklet/fleet/pkg/fleet"
)

// pendingRequest tracks one in-flight permission request awaiting a
// decision, along with the connection it arrived on so the decision is
// written back to the same connection rather than broadcast to whichever
// connection happens to be current — necessary once a broker accepts more
// than one connection over its lifetime.
type pendingRequest struct {
	req  fleet.PermissionRequest
	conn net.Conn
}

// pendingSet is the broker's map of outstanding requests, keyed by
// RequestID, guarded by a single mutex.
type pendingSet struct {
	mu       sync.Mutex
	byID     map[string]*pendingRequest
	served   int
	maxServe int
}

func newPendingSet(maxServe int) *pendingSet {
	return &pendingSet{
		byID:     make(map[string]*pendingRequest),
		maxServe: maxServe,
	}
}

// errRateLimited is returned by add when the broker has already served
// maxServe requests over its lifetime (spec.md Section 4.2, R_max).
var errRateLimited = fleet.ErrRateLimitExceeded

// add registers a new pending request arriving on conn. It fails once served
// reaches maxServe; the broker denies the request by construction in that
// case.
func (p *pendingSet) add(req fleet.PermissionRequest, conn net.Conn) (*pendingRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.served >= p.maxServe {
		return nil, errRateLimited
	}
	p.served++

	pr := &pendingRequest{req: req, conn: conn}
	p.byID[req.RequestID] = pr
	return pr, nil
}

// resolve removes the pending request dec targets and returns it (so the
// caller can write the decision back to the right connection and apply
// identity pass-through of its input blob). Returns false if no such
// request is outstanding (already resolved, or never registered by this
// broker).
func (p *pendingSet) resolve(dec fleet.PermissionDecision) (*pendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.byID[dec.RequestID]
	if !ok {
		return nil, false
	}
	delete(p.byID, dec.RequestID)
	return pr, true
}

// snapshot returns a read-only view of every currently pending request, used
// to populate WorkerStateSnapshot.PendingPermissions.
func (p *pendingSet) snapshot(workerID string) []fleet.PendingPermissionView {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]fleet.PendingPermissionView, 0, len(p.byID))
	for _, pr := range p.byID {
		out = append(out, fleet.PendingPermissionView{
			RequestID: pr.req.RequestID,
			WorkerID:  workerID,
			Tool:      pr.req.Tool,
			Input:     pr.req.Input,
		})
	}
	return out
}
