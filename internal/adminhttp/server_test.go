package adminhttp

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gynzy/socket.io-mongo-adapter/internal/adapter"
	"github.com/gynzy/socket.io-mongo-adapter/internal/config"
	"github.com/gynzy/socket.io-mongo-adapter/internal/memhost"
	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store/memstore"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

func newTestAdapter(t *testing.T) *adapter.Adapter {
	t.Helper()
	logger := log.NewLogger()
	logger.SetLevel(log.ErrorLevel)
	a, err := adapter.Open(adapter.Options{
		Nsp:    "/chat",
		Store:  memstore.New(),
		Host:   memhost.New(),
		Config: config.Default(),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestHealthzReportsNamespaceCount(t *testing.T) {
	a := newTestAdapter(t)
	srv := httptest.NewServer(New(map[string]*adapter.Adapter{"/chat": a}).srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %v, want ok", body["status"])
	}
	if body["namespaces"].(float64) != 1 {
		t.Fatalf("namespaces = %v, want 1", body["namespaces"])
	}
}

func TestSessionsReflectsCreatedSession(t *testing.T) {
	a := newTestAdapter(t)
	a.CreateSession("pid-1", "sid-1", []string{"room-a"})

	srv := httptest.NewServer(New(map[string]*adapter.Adapter{"/chat": a}).srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions?nsp=/chat")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	defer resp.Body.Close()

	var sessions []sessionView
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Sid != "sid-1" || sessions[0].State != "live" {
		t.Fatalf("sessions = %+v, want one live sid-1 session", sessions)
	}
}

func TestPeersReportsSelfUID(t *testing.T) {
	a := newTestAdapter(t)
	srv := httptest.NewServer(New(map[string]*adapter.Adapter{"/chat": a}).srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/peers?nsp=/chat")
	if err != nil {
		t.Fatalf("GET /peers: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Self  string   `json:"self"`
		Peers []string `json:"peers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Self != a.UID() {
		t.Fatalf("self = %q, want %q", body.Self, a.UID())
	}
}

func TestUnknownNamespaceReturnsNotFound(t *testing.T) {
	a := newTestAdapter(t)
	srv := httptest.NewServer(New(map[string]*adapter.Adapter{"/chat": a}).srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions?nsp=/does-not-exist")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestTailStreamsBroadcastRecords(t *testing.T) {
	a := newTestAdapter(t)
	srv := httptest.NewServer(New(map[string]*adapter.Adapter{"/chat": a}).srv.Handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/tail?nsp=/chat", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /tail: %v", err)
	}
	defer resp.Body.Close()

	if _, err := a.Broadcast(context.Background(), []byte("hi"), &record.BroadcastOpts{Rooms: []string{"room-a"}}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() {
		t.Fatalf("expected at least one tail line, scan err = %v", scanner.Err())
	}
	var ev tailEvent
	if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
		t.Fatalf("unmarshal tail event: %v", err)
	}
	if ev.Type != "broadcast" || ev.Nsp != "/chat" {
		t.Fatalf("tail event = %+v, want type=broadcast nsp=/chat", ev)
	}
}
