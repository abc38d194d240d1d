package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

// peerState tracks the last time a peer's heartbeat record was observed and
// how many consecutive scan cycles have passed without a fresh one.
type peerState struct {
	lastSeenMs int64
	misses     int
}

// heartbeatTracker is the process-scoped peer-liveness table feeding the
// RPC coordinator's cluster-size estimate (spec section 4.5). Heartbeats
// ride the same stream as every other record, per spec section 9
// ("Cluster-size estimation... must be carried in the same stream").
//
// Grounded on the ticker-driven background-scanner shape of the teacher's
// AutoClaimScanner, repurposed from lease reclamation to peer liveness.
type heartbeatTracker struct {
	mu            sync.Mutex
	peers         map[string]*peerState
	missThreshold int
	timeout       time.Duration
}

func newHeartbeatTracker(missThreshold int, timeout time.Duration) *heartbeatTracker {
	if missThreshold <= 0 {
		missThreshold = 2
	}
	return &heartbeatTracker{
		peers:         make(map[string]*peerState),
		missThreshold: missThreshold,
		timeout:       timeout,
	}
}

// observe records a fresh heartbeat from uid.
func (h *heartbeatTracker) observe(uid string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[uid]
	if !ok {
		p = &peerState{}
		h.peers[uid] = p
	}
	p.lastSeenMs = now.UnixMilli()
	p.misses = 0
}

// sweep advances the miss counter for every peer whose last heartbeat is
// older than the timeout, dropping any peer that crosses missThreshold. It
// returns the uids dropped in this call (spec section 4.5, "ClusterShrunk").
func (h *heartbeatTracker) sweep(now time.Time) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var dropped []string
	cutoff := now.Add(-h.timeout).UnixMilli()
	for uid, p := range h.peers {
		if p.lastSeenMs >= cutoff {
			continue
		}
		p.misses++
		if p.misses >= h.missThreshold {
			delete(h.peers, uid)
			dropped = append(dropped, uid)
		}
	}
	return dropped
}

// clusterSize returns the number of peers currently considered alive,
// excluding self (the caller adds one to account for self where needed).
func (h *heartbeatTracker) clusterSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// peerList returns the uids currently considered alive, for diagnostics.
func (h *heartbeatTracker) peerList() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.peers))
	for uid := range h.peers {
		out = append(out, uid)
	}
	return out
}

func (h *heartbeatTracker) isAlive(uid string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.peers[uid]
	return ok
}

// heartbeatLoop periodically emits a heartbeat record for self and sweeps
// the peer table, notifying onDrop for every peer that goes missing so the
// RPC coordinator can shrink expectedResponses on in-flight requests.
func heartbeatLoop(ctx context.Context, interval time.Duration, tracker *heartbeatTracker, emit func(context.Context) error, onDrop func(uid string), logger log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := emit(ctx); err != nil {
				logger.Warn("heartbeat emit failed", log.Err(err))
			}
			for _, uid := range tracker.sweep(time.Now()) {
				logger.Debug("peer considered gone", log.Str("uid", uid))
				if onDrop != nil {
					onDrop(uid)
				}
			}
		}
	}
}
