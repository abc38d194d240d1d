package memhost

import "testing"

func TestAddAllAndSockets(t *testing.T) {
	h := New()
	h.Connect("/chat", "s1", nil)
	h.Connect("/chat", "s2", nil)
	h.AddAll("/chat", "s1", []string{"room-a"})
	h.AddAll("/chat", "s2", []string{"room-b"})

	got := h.Sockets("/chat", []string{"room-a"})
	if len(got) != 1 || got[0] != "s1" {
		t.Fatalf("Sockets(room-a) = %v, want [s1]", got)
	}

	all := h.Sockets("/chat", nil)
	if len(all) != 2 {
		t.Fatalf("Sockets(nil) = %v, want 2 entries", all)
	}
}

func TestDelRemovesFromRoomOnly(t *testing.T) {
	h := New()
	h.Connect("/chat", "s1", nil)
	h.AddAll("/chat", "s1", []string{"a", "b"})
	h.Del("/chat", "s1", "a")

	rooms, ok := h.SocketRooms("/chat", "s1")
	if !ok || len(rooms) != 1 || rooms[0] != "b" {
		t.Fatalf("SocketRooms = %v, ok=%v, want [b]", rooms, ok)
	}
}

func TestDelAll(t *testing.T) {
	h := New()
	h.Connect("/chat", "s1", nil)
	h.AddAll("/chat", "s1", []string{"a", "b"})
	h.DelAll("/chat", "s1")

	rooms, ok := h.SocketRooms("/chat", "s1")
	if !ok || len(rooms) != 0 {
		t.Fatalf("SocketRooms after DelAll = %v, ok=%v, want []", rooms, ok)
	}
}

func TestSendRecordsPacketAndRejectsUnknownSocket(t *testing.T) {
	h := New()
	h.Connect("/chat", "s1", nil)
	if err := h.Send("/chat", "s1", []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := h.Sent()
	if len(sent) != 1 || string(sent[0].Packet) != "hi" {
		t.Fatalf("Sent() = %v, want one packet \"hi\"", sent)
	}
	if err := h.Send("/chat", "ghost", []byte("x")); err == nil {
		t.Fatal("Send to unconnected socket should error")
	}
}

func TestDisconnectRemovesSocketAndRecordsCloseFlag(t *testing.T) {
	h := New()
	h.Connect("/chat", "s1", nil)
	if err := h.Disconnect("/chat", "s1", true); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, ok := h.SocketRooms("/chat", "s1"); ok {
		t.Fatal("socket should be gone after Disconnect")
	}
	close, ok := h.Disconnected("/chat", "s1")
	if !ok || !close {
		t.Fatalf("Disconnected = %v, %v, want true, true", close, ok)
	}
}

func TestFetchMetaReturnsConnectMeta(t *testing.T) {
	h := New()
	h.Connect("/chat", "s1", map[string]interface{}{"user": "alice"})
	meta, ok := h.FetchMeta("/chat", "s1")
	if !ok || meta["user"] != "alice" {
		t.Fatalf("FetchMeta = %v, ok=%v", meta, ok)
	}
	if _, ok := h.FetchMeta("/chat", "ghost"); ok {
		t.Fatal("FetchMeta for unknown socket should report not ok")
	}
}
