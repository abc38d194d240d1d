package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gynzy/socket.io-mongo-adapter/internal/config"
	"github.com/gynzy/socket.io-mongo-adapter/internal/memhost"
	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store/memstore"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

func testLogger() log.Logger {
	l := log.NewLogger()
	l.SetLevel(log.ErrorLevel)
	return l
}

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.HeartbeatIntervalMs = 20
	cfg.HeartbeatTimeoutMs = 60
	cfg.HeartbeatMissThreshold = 2
	cfg.RequestsTimeoutMs = 300
	cfg.OverlapMargin = 0
	return cfg
}

func openAdapter(t *testing.T, st store.Store, host Host, cfg config.Config) *Adapter {
	t.Helper()
	a, err := Open(Options{
		Nsp:    "/chat",
		Store:  st,
		Host:   host,
		Config: cfg,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBroadcastDeliversLocally(t *testing.T) {
	st := memstore.New()
	host := memhost.New()
	host.Connect("/chat", "s1", nil)
	host.AddAll("/chat", "s1", []string{"room-a"})

	a := openAdapter(t, st, host, fastConfig())

	_, err := a.Broadcast(context.Background(), []byte("hello"), &record.BroadcastOpts{Rooms: []string{"room-a"}})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	sent := host.Sent()
	if len(sent) != 1 || string(sent[0].Packet) != "hello" {
		t.Fatalf("Sent = %v, want one \"hello\" packet", sent)
	}
}

func TestBroadcastFansOutAcrossInstances(t *testing.T) {
	st := memstore.New()
	hostA := memhost.New()
	hostB := memhost.New()
	hostB.Connect("/chat", "s1", nil)
	hostB.AddAll("/chat", "s1", []string{"room-a"})

	cfg := fastConfig()
	a := openAdapter(t, st, hostA, cfg)
	_ = openAdapter(t, st, hostB, cfg)

	if _, err := a.Broadcast(context.Background(), []byte("hi"), &record.BroadcastOpts{Rooms: []string{"room-a"}}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(hostB.Sent()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sent := hostB.Sent()
	if len(sent) != 1 || string(sent[0].Packet) != "hi" {
		t.Fatalf("hostB.Sent() = %v, want one \"hi\" packet", sent)
	}
}

func TestFetchSocketsAggregatesAcrossInstances(t *testing.T) {
	st := memstore.New()
	hostA := memhost.New()
	hostB := memhost.New()
	hostA.Connect("/chat", "sa", nil)
	hostA.AddAll("/chat", "sa", []string{"room-a"})
	hostB.Connect("/chat", "sb", nil)
	hostB.AddAll("/chat", "sb", []string{"room-a"})

	cfg := fastConfig()
	a := openAdapter(t, st, hostA, cfg)
	_ = openAdapter(t, st, hostB, cfg)

	// Let heartbeats cross several ticks so each side's cluster size is > 0.
	time.Sleep(300 * time.Millisecond)

	sids, err := a.FetchSockets(context.Background(), []string{"room-a"})
	if err != nil && !errors.Is(err, ErrRPCTimeout) {
		t.Fatalf("FetchSockets: %v", err)
	}
	want := map[string]bool{"sa": true, "sb": true}
	got := map[string]bool{}
	for _, s := range sids {
		got[s] = true
	}
	for s := range want {
		if !got[s] {
			t.Errorf("FetchSockets missing %q, got %v", s, sids)
		}
	}
}

func TestSessionRestoreSameInstanceReplaysMissedBroadcasts(t *testing.T) {
	st := memstore.New()
	host := memhost.New()
	host.Connect("/chat", "s1", nil)
	host.AddAll("/chat", "s1", []string{"room-a"})

	cfg := fastConfig()
	a := openAdapter(t, st, host, cfg)

	sess := a.CreateSession("pid-1", "s1", []string{"room-a"})
	if sess.State != SessionLive {
		t.Fatalf("new session state = %v, want live", sess.State)
	}

	ctx := context.Background()
	offset, err := a.Broadcast(ctx, []byte("before-disconnect"), &record.BroadcastOpts{Rooms: []string{"room-a"}})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	if err := a.PersistSession(ctx, "s1"); err != nil {
		t.Fatalf("PersistSession: %v", err)
	}
	if err := host.Disconnect("/chat", "s1", false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if _, err := a.Broadcast(ctx, []byte("missed-1"), &record.BroadcastOpts{Rooms: []string{"room-a"}}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if _, err := a.Broadcast(ctx, []byte("missed-2"), &record.BroadcastOpts{Rooms: []string{"room-a"}}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	host.Connect("/chat", "s1-new", nil)
	resumed, err := a.RestoreSession(ctx, "pid-1", "s1-new", offset)
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if resumed.State != SessionLive {
		t.Fatalf("resumed.State = %v, want live", resumed.State)
	}
	if resumed.Sid != "s1-new" {
		t.Fatalf("resumed.Sid = %q, want s1-new", resumed.Sid)
	}

	sent := host.Sent()
	if len(sent) != 3 {
		t.Fatalf("delivered %d packets total, want 3 (1 pre-disconnect + 2 replayed): %v", len(sent), sent)
	}
	if string(sent[0].Packet) != "before-disconnect" || string(sent[1].Packet) != "missed-1" || string(sent[2].Packet) != "missed-2" {
		t.Fatalf("delivered packets = %v, want [before-disconnect missed-1 missed-2]", sent)
	}
}

func TestRestoreSessionUnknownPid(t *testing.T) {
	st := memstore.New()
	host := memhost.New()
	a := openAdapter(t, st, host, fastConfig())

	_, err := a.RestoreSession(context.Background(), "no-such-pid", "s1", make([]byte, offsetWidth))
	if !errors.Is(err, ErrSessionUnknown) {
		t.Fatalf("err = %v, want ErrSessionUnknown", err)
	}
}

func TestRestoreSessionInvalidOffset(t *testing.T) {
	st := memstore.New()
	host := memhost.New()
	host.Connect("/chat", "s1", nil)
	a := openAdapter(t, st, host, fastConfig())

	a.CreateSession("pid-1", "s1", nil)

	if _, err := a.RestoreSession(context.Background(), "pid-1", "s2", []byte("too-short")); !errors.Is(err, ErrOffsetInvalid) {
		t.Fatalf("short offset: err = %v, want ErrOffsetInvalid", err)
	}

	// A well-formed but never-issued offset, older than anything retained
	// once at least one record exists, is also invalid.
	if _, err := a.Broadcast(context.Background(), []byte("x"), nil); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	zero := make([]byte, offsetWidth)
	if _, err := a.RestoreSession(context.Background(), "pid-1", "s2", zero); !errors.Is(err, ErrOffsetInvalid) {
		t.Fatalf("zero offset: err = %v, want ErrOffsetInvalid", err)
	}
}

// failingStore wraps a store.Store and fails every Insert, to exercise the
// publisher's retry-then-PublishFailed path while local delivery still
// proceeds (spec section 4.2).
type failingStore struct {
	store.Store
}

func (f *failingStore) Insert(ctx context.Context, body []byte, createdAt time.Time) ([]byte, error) {
	return nil, store.ErrUnavailable
}

func TestBroadcastLocalDeliverySurvivesPublishFailure(t *testing.T) {
	st := &failingStore{Store: memstore.New()}
	host := memhost.New()
	host.Connect("/chat", "s1", nil)
	host.AddAll("/chat", "s1", []string{"room-a"})

	cfg := fastConfig()
	a := openAdapter(t, st, host, cfg)

	_, err := a.Broadcast(context.Background(), []byte("still-local"), &record.BroadcastOpts{Rooms: []string{"room-a"}})
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("err = %v, want ErrPublishFailed", err)
	}

	sent := host.Sent()
	if len(sent) != 1 || string(sent[0].Packet) != "still-local" {
		t.Fatalf("Sent = %v, want local delivery to still happen", sent)
	}
}

func TestServerSideEmitFireAndForgetAcrossInstances(t *testing.T) {
	st := memstore.New()
	hostA := memhost.New()
	hostB := memhost.New()
	cfg := fastConfig()

	received := make(chan string, 1)
	a := openAdapter(t, st, hostA, cfg)
	b, err := Open(Options{
		Nsp:    "/chat",
		Store:  st,
		Host:   hostB,
		Config: cfg,
		Logger: testLogger(),
		OnServerSideEmit: func(args json.RawMessage) (json.RawMessage, error) {
			var s string
			_ = json.Unmarshal(args, &s)
			received <- s
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	payload, _ := json.Marshal("ping")
	if err := a.ServerSideEmit(context.Background(), payload); err != nil {
		t.Fatalf("ServerSideEmit: %v", err)
	}

	select {
	case got := <-received:
		if got != "ping" {
			t.Fatalf("received = %q, want ping", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server-side-emit listener")
	}
}
