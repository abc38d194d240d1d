// Package adminhttp is a read-only operational HTTP surface over one or
// more adapter.Adapter instances: health, session/peer diagnostics, and a
// streaming newline-delimited JSON tail of the shared event collection
// filtered by an optional CEL expression (spec section 9).
//
// Grounded on the teacher's internal/server/http.Server: a stdlib
// net/http.ServeMux wrapped in a permissive CORS handler, with
// context-cancellation-driven graceful Shutdown.
package adminhttp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gynzy/socket.io-mongo-adapter/internal/adapter"
	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
)

// Server exposes a fixed set of namespace adapters for diagnostics. It
// never mutates adapter state; every handler is a read.
type Server struct {
	adapters map[string]*adapter.Adapter
	srv      *http.Server
	lis      net.Listener
}

// New builds a Server over the given namespace -> Adapter map.
func New(adapters map[string]*adapter.Adapter) *Server {
	mux := http.NewServeMux()
	s := &Server{adapters: adapters, srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/peers", s.handlePeers)
	mux.HandleFunc("/tail", s.handleTail)
	return s
}

// ListenAndServe blocks serving on addr until ctx is canceled, at which
// point it drains with a bounded grace period (spec section 9 carries no
// opinion on shutdown; this mirrors the teacher's 5s Shutdown budget).
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener without waiting for in-flight requests.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) nspParam(r *http.Request) (*adapter.Adapter, bool) {
	nsp := r.URL.Query().Get("nsp")
	if nsp == "" && len(s.adapters) == 1 {
		for _, a := range s.adapters {
			return a, true
		}
	}
	a, ok := s.adapters[nsp]
	return a, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok", "namespaces": len(s.adapters)}
	_ = json.NewEncoder(w).Encode(status)
}

type sessionView struct {
	Sid            string `json:"sid"`
	Pid            string `json:"pid"`
	Nsp            string `json:"nsp"`
	Rooms          []string `json:"rooms"`
	State          string `json:"state"`
	DisconnectedAt string `json:"disconnectedAt,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	a, ok := s.nspParam(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sessions := a.Sessions()
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		v := sessionView{Sid: sess.Sid, Pid: sess.Pid, Nsp: sess.Nsp, Rooms: sess.Rooms, State: sess.State.String()}
		if !sess.DisconnectedAt.IsZero() {
			v.DisconnectedAt = sess.DisconnectedAt.Format(time.RFC3339)
		}
		out = append(out, v)
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	a, ok := s.nspParam(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"self":  a.UID(),
		"peers": a.Peers(),
	})
}

type tailEvent struct {
	Offset      string `json:"offset"`
	Type        string `json:"type"`
	Nsp         string `json:"nsp"`
	UID         string `json:"uid"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// handleTail streams the shared event collection as newline-delimited JSON
// objects (one tailEvent per line, no SSE "data:" framing), optionally
// restricted by the adapter's compiled CEL filter (set via
// Options.FilterExpr at adapter.Open time).
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	a, ok := s.nspParam(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	ctx := r.Context()
	cur, err := a.Store().Tail(ctx, nil)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer cur.Close()
	if flusher != nil {
		flusher.Flush()
	}

	filter := a.Filter()
	for {
		raw, err := cur.Next(ctx)
		if err != nil {
			return
		}
		rec, err := record.Decode(raw.Body, raw.Offset)
		if err != nil {
			continue
		}
		var rooms []string
		if rec.Data.Opts != nil {
			rooms = rec.Data.Opts.Rooms
		}
		if !filter.Eval(rec.Nsp, string(rec.Type), rec.UID, rooms, rec.CreatedAtMs) {
			continue
		}
		ev := tailEvent{
			Offset:      offsetHex(raw.Offset),
			Type:        string(rec.Type),
			Nsp:         rec.Nsp,
			UID:         rec.UID,
			CreatedAtMs: rec.CreatedAtMs,
		}
		_ = json.NewEncoder(w).Encode(ev)
		w.Write([]byte("\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func offsetHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
