package adapter

import (
	"sync"
	"time"
)

// SessionState is a position in the CREATED -> LIVE -> RECOVERABLE ->
// EXPIRED state machine of spec section 4.6.
type SessionState int

const (
	SessionCreated SessionState = iota
	SessionLive
	SessionRecoverable
	SessionExpired
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionLive:
		return "live"
	case SessionRecoverable:
		return "recoverable"
	case SessionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session is the ephemeral per-connection record of spec section 3.
type Session struct {
	Sid            string
	Pid            string
	Nsp            string
	Rooms          []string
	LastOffset     []byte
	DisconnectedAt time.Time
	State          SessionState
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Rooms = append([]string(nil), s.Rooms...)
	cp.LastOffset = append([]byte(nil), s.LastOffset...)
	return &cp
}

// sessionTable is the process-scoped, adapter-owned session registry keyed
// by pid. It is touched only by the adapter's own goroutines under mu; no
// caller-visible locking is required (spec section 5, "shared-resource
// policy").
type sessionTable struct {
	mu       sync.Mutex
	byPid    map[string]*Session
	bySid    map[string]*Session
	maxGrace time.Duration
}

func newSessionTable(maxGrace time.Duration) *sessionTable {
	return &sessionTable{
		byPid:    make(map[string]*Session),
		bySid:    make(map[string]*Session),
		maxGrace: maxGrace,
	}
}

func (t *sessionTable) create(sess *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess.State = SessionLive
	t.byPid[sess.Pid] = sess
	t.bySid[sess.Sid] = sess
}

func (t *sessionTable) get(pid string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byPid[pid]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

func (t *sessionTable) getBySid(sid string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.bySid[sid]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// markDisconnected transitions a live session to RECOVERABLE. It is kept
// for maxGrace and then removed by sweepExpired.
func (t *sessionTable) markDisconnected(sid string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.bySid[sid]
	if !ok {
		return
	}
	s.State = SessionRecoverable
	s.DisconnectedAt = at
}

// destroy removes a session unconditionally (clean disconnect or
// post-recovery replacement by a new connection).
func (t *sessionTable) destroy(sid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.bySid[sid]
	if !ok {
		return
	}
	delete(t.bySid, sid)
	delete(t.byPid, s.Pid)
}

// resume transitions a RECOVERABLE session back to LIVE under a (possibly
// new) sid, keeping the same pid/rooms/lastOffset.
func (t *sessionTable) resume(pid, newSid string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byPid[pid]
	if !ok || s.State == SessionExpired {
		return nil, false
	}
	delete(t.bySid, s.Sid)
	s.Sid = newSid
	s.State = SessionLive
	t.bySid[newSid] = s
	return s.clone(), true
}

// advanceOffset sets lastOffset for sid if off is greater than the current
// value (spec invariant: "a session's lastOffset only advances").
func (t *sessionTable) advanceOffset(sid string, off []byte, cmp func(a, b []byte) int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.bySid[sid]
	if !ok {
		return
	}
	if len(s.LastOffset) == 0 || cmp(off, s.LastOffset) > 0 {
		s.LastOffset = append([]byte(nil), off...)
	}
}

// all returns a clone of every session currently tracked, for diagnostics.
func (t *sessionTable) all() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.byPid))
	for _, s := range t.byPid {
		out = append(out, s.clone())
	}
	return out
}

// sweepExpired moves RECOVERABLE sessions past their grace window to
// EXPIRED and removes them from the table, returning the pids destroyed.
func (t *sessionTable) sweepExpired(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []string
	for pid, s := range t.byPid {
		if s.State == SessionRecoverable && now.Sub(s.DisconnectedAt) >= t.maxGrace {
			s.State = SessionExpired
			expired = append(expired, pid)
			delete(t.byPid, pid)
			delete(t.bySid, s.Sid)
		}
	}
	return expired
}
