// Package memhost is an in-memory implementation of adapter.Host: it keeps
// per-namespace room membership and a fake send sink, for tests and the
// CLI demo cluster where no real transport is wired up.
//
// Grounded on other_examples' gosocketio.Adapter (Add/Remove/RemoveAll/
// Sockets/SocketRooms/Broadcast) shape, combined with the teacher's
// namespace package's ensure-or-create bookkeeping idiom.
package memhost

import "sync"

// Sent records one packet handed to a socket, for assertions in tests.
type Sent struct {
	Nsp    string
	Sid    string
	Packet []byte
}

type socketState struct {
	rooms map[string]struct{}
	meta  map[string]interface{}
}

type nsState struct {
	sockets map[string]*socketState
}

// Host is the in-memory adapter.Host implementation. Zero value is not
// usable; use New.
type Host struct {
	mu sync.Mutex
	ns map[string]*nsState

	sent        []Sent
	disconnects map[string]bool // "nsp/sid" -> shouldClose
}

// New returns an empty Host.
func New() *Host {
	return &Host{
		ns:          make(map[string]*nsState),
		disconnects: make(map[string]bool),
	}
}

func (h *Host) ensureNs(nsp string) *nsState {
	n, ok := h.ns[nsp]
	if !ok {
		n = &nsState{sockets: make(map[string]*socketState)}
		h.ns[nsp] = n
	}
	return n
}

func (h *Host) ensureSocket(nsp, sid string) *socketState {
	n := h.ensureNs(nsp)
	s, ok := n.sockets[sid]
	if !ok {
		s = &socketState{rooms: make(map[string]struct{})}
		n.sockets[sid] = s
	}
	return s
}

// Connect registers sid in nsp with optional metadata, without joining any
// rooms. Host implementations in real frameworks do this implicitly on
// transport connect; memhost exposes it explicitly for test setup.
func (h *Host) Connect(nsp, sid string, meta map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.ensureSocket(nsp, sid)
	s.meta = meta
}

// AddAll implements adapter.Host.
func (h *Host) AddAll(nsp, sid string, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.ensureSocket(nsp, sid)
	for _, r := range rooms {
		s.rooms[r] = struct{}{}
	}
}

// Del implements adapter.Host.
func (h *Host) Del(nsp, sid, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.ns[nsp]
	if !ok {
		return
	}
	s, ok := n.sockets[sid]
	if !ok {
		return
	}
	delete(s.rooms, room)
}

// DelAll implements adapter.Host.
func (h *Host) DelAll(nsp, sid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.ns[nsp]
	if !ok {
		return
	}
	if s, ok := n.sockets[sid]; ok {
		s.rooms = make(map[string]struct{})
	}
}

// Sockets implements adapter.Host.
func (h *Host) Sockets(nsp string, rooms []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.ns[nsp]
	if !ok {
		return nil
	}
	var out []string
	if len(rooms) == 0 {
		for sid := range n.sockets {
			out = append(out, sid)
		}
		return out
	}
	want := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		want[r] = struct{}{}
	}
	for sid, s := range n.sockets {
		for r := range s.rooms {
			if _, ok := want[r]; ok {
				out = append(out, sid)
				break
			}
		}
	}
	return out
}

// SocketRooms implements adapter.Host.
func (h *Host) SocketRooms(nsp, sid string) ([]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.ns[nsp]
	if !ok {
		return nil, false
	}
	s, ok := n.sockets[sid]
	if !ok {
		return nil, false
	}
	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	return rooms, true
}

// Send implements adapter.Host: it appends to the in-memory Sent log
// instead of writing to a real transport.
func (h *Host) Send(nsp, sid string, packet []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.ns[nsp]
	if !ok {
		return errNotConnected(nsp, sid)
	}
	if _, ok := n.sockets[sid]; !ok {
		return errNotConnected(nsp, sid)
	}
	h.sent = append(h.sent, Sent{Nsp: nsp, Sid: sid, Packet: append([]byte(nil), packet...)})
	return nil
}

// Disconnect implements adapter.Host.
func (h *Host) Disconnect(nsp, sid string, shouldClose bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.ns[nsp]
	if !ok {
		return errNotConnected(nsp, sid)
	}
	if _, ok := n.sockets[sid]; !ok {
		return errNotConnected(nsp, sid)
	}
	h.disconnects[nsp+"/"+sid] = shouldClose
	delete(n.sockets, sid)
	return nil
}

// FetchMeta implements adapter.Host.
func (h *Host) FetchMeta(nsp, sid string) (map[string]interface{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.ns[nsp]
	if !ok {
		return nil, false
	}
	s, ok := n.sockets[sid]
	if !ok {
		return nil, false
	}
	return s.meta, true
}

// Sent returns every packet delivered via Send so far, for test assertions.
func (h *Host) Sent() []Sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Sent(nil), h.sent...)
}

// Disconnected reports whether Disconnect was called for nsp/sid and, if
// so, with what shouldClose value.
func (h *Host) Disconnected(nsp, sid string) (shouldClose bool, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	shouldClose, ok = h.disconnects[nsp+"/"+sid]
	return shouldClose, ok
}

type notConnectedError struct{ nsp, sid string }

func (e *notConnectedError) Error() string {
	return "memhost: " + e.sid + " not connected in " + e.nsp
}

func errNotConnected(nsp, sid string) error {
	return &notConnectedError{nsp: nsp, sid: sid}
}
