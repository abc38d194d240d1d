package adapter

// Host is the real-time socket framework the adapter rides on top of: it
// owns namespaces, rooms, local client enumeration, and the per-connection
// send primitive (spec section 1, "out of scope: external collaborators").
// The adapter never keeps its own room directory; it always asks Host.
type Host interface {
	// AddAll attaches sid to every room in rooms, creating rooms that don't
	// exist yet.
	AddAll(nsp, sid string, rooms []string)

	// Del detaches sid from room. No-op if sid was not in room.
	Del(nsp, sid, room string)

	// DelAll detaches sid from every room it belongs to.
	DelAll(nsp, sid string)

	// Sockets returns the ids of every local socket in nsp that belongs to
	// at least one of rooms, or every local socket in nsp if rooms is empty.
	Sockets(nsp string, rooms []string) []string

	// SocketRooms returns the rooms sid currently belongs to in nsp. The
	// second return value is false if sid is not known locally.
	SocketRooms(nsp, sid string) ([]string, bool)

	// Send hands packet to sid's transport. Returns an error if sid is not
	// connected locally or the transport rejects the write.
	Send(nsp, sid string, packet []byte) error

	// Disconnect closes sid's connection. If shouldClose is false the
	// socket is merely removed from the namespace bookkeeping.
	Disconnect(nsp, sid string, shouldClose bool) error

	// FetchMeta returns a small serialized view of sid suitable for
	// REMOTE_FETCH responses (rooms, handshake data, etc). ok is false if
	// sid is not known locally.
	FetchMeta(nsp, sid string) (meta map[string]interface{}, ok bool)
}
