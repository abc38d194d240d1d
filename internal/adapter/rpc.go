package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// RequestType enumerates the fixed request shapes of spec section 4.5.
// Every requestType expects one response from every living peer.
type RequestType string

const (
	RequestSockets          RequestType = "sockets"
	RequestAllRooms         RequestType = "all-rooms"
	RequestRemoteJoin       RequestType = "remote-join"
	RequestRemoteLeave      RequestType = "remote-leave"
	RequestRemoteDisconnect RequestType = "remote-disconnect"
	RequestRemoteFetch      RequestType = "remote-fetch"
	RequestServerSideEmit   RequestType = "server-side-emit"
	RequestBroadcastWithAck RequestType = "broadcast-with-ack"
	// requestRemoteFetchSession names a peer-RPC session lookup. Nothing
	// in this package sends it and handleRequest has no case for it;
	// cross-instance session lookup goes through the store instead.
	requestRemoteFetchSession RequestType = "remote-fetch-session"
)

// pendingRequest is the in-memory bookkeeping entry of spec section 3
// ("Pending RPC entry"). It accumulates responses until expected is
// reached or the caller's deadline elapses, at which point done closes
// exactly once.
type pendingRequest struct {
	requestID   string
	requestType RequestType

	mu        sync.Mutex
	expected  int
	responses []json.RawMessage
	done      chan struct{}
	closed    bool
}

func (p *pendingRequest) addResponse(data json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.responses = append(p.responses, data)
	if len(p.responses) >= p.expected {
		p.finishLocked()
	}
}

// dropExpected reduces the number of outstanding responses required,
// because a peer that was counted toward "all peers" went missing (spec
// section 4.5, heartbeat-driven ClusterShrunk).
func (p *pendingRequest) dropExpected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.expected > 0 {
		p.expected--
	}
	if len(p.responses) >= p.expected {
		p.finishLocked()
	}
}

func (p *pendingRequest) finishLocked() {
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}

func (p *pendingRequest) snapshot() []json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]json.RawMessage(nil), p.responses...)
}

// rpcCoordinator matches request/response records across instances and
// aggregates partial results under a deadline (spec section 4.5). It is
// process-scoped and touched only by the adapter's own goroutines.
//
// Grounded on the acquire/expire-by-deadline bookkeeping of the teacher's
// workqueue LeaseManager/PEL, repurposed from message leases to RPC
// correlation entries.
type rpcCoordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

func newRPCCoordinator() *rpcCoordinator {
	return &rpcCoordinator{pending: make(map[string]*pendingRequest)}
}

// register creates a pending entry expecting `expected` responses. If
// expected is zero (no known peers) it resolves immediately.
func (c *rpcCoordinator) register(requestID string, requestType RequestType, expected int) *pendingRequest {
	p := &pendingRequest{
		requestID:   requestID,
		requestType: requestType,
		expected:    expected,
		done:        make(chan struct{}),
	}
	c.mu.Lock()
	c.pending[requestID] = p
	c.mu.Unlock()
	if expected <= 0 {
		p.mu.Lock()
		p.finishLocked()
		p.mu.Unlock()
	}
	return p
}

// resolveResponse feeds a response record's data to its pending request,
// if any is still outstanding. Requests with no matching pending entry
// (already resolved, or this instance never issued them) are dropped
// silently.
func (c *rpcCoordinator) resolveResponse(requestID string, data json.RawMessage) {
	c.mu.Lock()
	p := c.pending[requestID]
	c.mu.Unlock()
	if p == nil {
		return
	}
	p.addResponse(data)
}

func (c *rpcCoordinator) forget(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// onPeerDropped reduces expected counts across every outstanding request
// when the heartbeat tracker declares a peer gone mid-flight.
func (c *rpcCoordinator) onPeerDropped(uid string) {
	c.mu.Lock()
	reqs := make([]*pendingRequest, 0, len(c.pending))
	for _, p := range c.pending {
		reqs = append(reqs, p)
	}
	c.mu.Unlock()
	for _, p := range reqs {
		p.dropExpected()
	}
}

// await blocks until p resolves, the deadline elapses, or ctx is canceled,
// returning whatever responses were collected. On timeout it returns
// ErrRPCTimeout alongside the partial set, matching spec section 4.5's
// "resolves with the partial set of responses collected" behavior.
func (c *rpcCoordinator) await(ctx context.Context, p *pendingRequest, deadline time.Duration) ([]json.RawMessage, error) {
	defer c.forget(p.requestID)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.snapshot(), nil
	case <-timer.C:
		p.mu.Lock()
		p.finishLocked()
		p.mu.Unlock()
		return p.snapshot(), ErrRPCTimeout
	case <-ctx.Done():
		p.mu.Lock()
		p.finishLocked()
		p.mu.Unlock()
		return p.snapshot(), ctx.Err()
	}
}
