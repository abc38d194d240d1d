// Package adapter implements the distributed event-broadcast adapter: the
// core described across spec sections 3-7, wired to a consumer-supplied Host
// and store.Store. Everything else in this package (session, publisher,
// listener, rpc, heartbeat, delivery, recovery, filter) is a collaborator
// Adapter owns the lifecycle of; Adapter itself is the only exported entry
// point a host framework integrates against.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gynzy/socket.io-mongo-adapter/internal/config"
	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

// sessionSweepInterval is how often the adapter checks for RECOVERABLE
// sessions that have aged out of their grace window.
const sessionSweepInterval = 10 * time.Second

// SocketInfo is the REMOTE_FETCH response shape: a compact, serializable
// view of one socket somewhere in the cluster.
type SocketInfo struct {
	Sid  string                 `json:"sid"`
	Nsp  string                 `json:"nsp"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// ServerSideEmitHandler runs a namespace's local server-side-emit listeners
// against args, optionally returning ack data. It is used both fire-and-
// forget (publishServerSideEmit, ack return ignored) and for the ack-
// aggregating request/response RPC variant.
type ServerSideEmitHandler func(args json.RawMessage) (ack json.RawMessage, err error)

// Options configures a single namespace adapter instance (spec section 6:
// "one adapter instance per namespace per process").
type Options struct {
	// Nsp is the namespace this adapter instance serves.
	Nsp string
	// Store is the shared capped event collection driver.
	Store store.Store
	// Host is the real-time framework this instance delivers into.
	Host Host
	// Config carries the tunables of spec section 6.
	Config config.Config
	// Logger is the base logger; adapter.go tags it with component/nsp/uid.
	Logger log.Logger
	// FilterExpr is an optional CEL expression restricting which records the
	// admin tail shows (see Filter). FetchSockets does not apply it.
	FilterExpr string
	// OnServerSideEmit, if set, is invoked for every server-side-emit
	// record (fire-and-forget) and every SERVER_SIDE_EMIT request (ack
	// aggregated) addressed to this namespace.
	OnServerSideEmit ServerSideEmitHandler
}

// Adapter is one namespace's worth of the distributed broadcast adapter: it
// owns a publisher, a stream listener, an RPC coordinator, a heartbeat
// tracker, a session table, and a recovery service, and exposes the
// consumer-facing operations of spec section 6 ("Adapter contract").
//
// Grounded on the teacher's top-level service wiring shape (one struct per
// subsystem, Open/Close lifecycle via errgroup, a single background-loop
// fan-out at Open time).
type Adapter struct {
	nsp    string
	uid    string
	store  store.Store
	host   Host
	cfg    config.Config
	logger log.Logger
	filter recordFilter

	publisher *publisher
	listener  *listener
	rpc       *rpcCoordinator
	hb        *heartbeatTracker
	sessions  *sessionTable
	recovery  *recoveryService

	onServerSideEmit ServerSideEmitHandler

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	errOnce sync.Once
	errCh   chan error
}

// Open wires every collaborator together and starts the background
// goroutines (stream listener, heartbeat loop, session sweeper). The
// returned Adapter is immediately usable; Close stops all of it.
func Open(opts Options) (*Adapter, error) {
	if opts.Nsp == "" {
		return nil, errors.New("adapter: Nsp is required")
	}
	if opts.Store == nil || opts.Host == nil {
		return nil, errors.New("adapter: Store and Host are required")
	}
	cfg := opts.Config
	uid := cfg.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	logger = logger.WithComponent("adapter").With(log.Str("nsp", opts.Nsp), log.Str("uid", uid))

	filter, err := newRecordFilter(opts.FilterExpr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	a := &Adapter{
		nsp:              opts.Nsp,
		uid:              uid,
		store:            opts.Store,
		host:             opts.Host,
		cfg:              cfg,
		logger:           logger,
		filter:           filter,
		publisher:        newPublisher(opts.Store, uid, cfg.AddCreatedAtField, logger),
		rpc:              newRPCCoordinator(),
		hb:               newHeartbeatTracker(cfg.HeartbeatMissThreshold, cfg.HeartbeatTimeout()),
		sessions:         newSessionTable(cfg.MaxDisconnectionDuration()),
		onServerSideEmit: opts.OnServerSideEmit,
		ctx:              ctx,
		cancel:           cancel,
		group:            group,
		errCh:            make(chan error, 1),
	}
	a.recovery = newRecoveryService(opts.Store, a.sessions, opts.Host, opts.Store.Compare, logger)
	a.listener = newListener(opts.Store, uid, cfg.OverlapMargin, cfg.DupIDCacheSize, logger)
	a.listener.onBroadcast = a.handleBroadcast
	a.listener.onRequest = a.handleRequest
	a.listener.onResponse = a.handleResponse
	a.listener.onAck = a.handleAck
	a.listener.onServerSideEmit = a.handleServerSideEmitRecord
	a.listener.onHeartbeat = func(peerUID string) { a.hb.observe(peerUID, time.Now()) }

	group.Go(func() error {
		a.listener.run(gctx)
		return nil
	})
	group.Go(func() error {
		heartbeatLoop(gctx, cfg.HeartbeatInterval(), a.hb, a.publisher.publishHeartbeat, a.rpc.onPeerDropped, logger)
		return nil
	})
	group.Go(func() error {
		a.sweepLoop(gctx)
		return nil
	})
	group.Go(func() error {
		select {
		case err := <-a.listener.errCh:
			a.reportErr(err)
		case <-gctx.Done():
		}
		return nil
	})

	return a, nil
}

// Close stops every background goroutine and waits for them to exit.
func (a *Adapter) Close() error {
	a.cancel()
	return a.group.Wait()
}

// Err returns a channel that receives at most one fatal error (currently
// only ErrStreamGone) for the lifetime of the adapter (spec section 7).
func (a *Adapter) Err() <-chan error {
	return a.errCh
}

func (a *Adapter) reportErr(err error) {
	a.errOnce.Do(func() {
		a.errCh <- err
		close(a.errCh)
	})
}

func (a *Adapter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pid := range a.sessions.sweepExpired(time.Now()) {
				a.logger.Debug("session expired", log.Str("pid", pid))
			}
		}
	}
}

// --- listener dispatch -----------------------------------------------------

func (a *Adapter) handleBroadcast(rec record.Record) {
	if rec.Nsp != a.nsp {
		return
	}
	localDelivery(a.host, a.nsp, rec.Data.Packet, rec.Data.Opts, rec.Offset, a.sessions, a.store.Compare, a.logger)
}

func (a *Adapter) handleResponse(rec record.Record) {
	a.rpc.resolveResponse(rec.Data.RequestID, rec.Data.ResponseData)
}

func (a *Adapter) handleAck(rec record.Record) {
	a.rpc.resolveResponse(rec.Data.RequestID, rec.Data.ResponseData)
}

func (a *Adapter) handleServerSideEmitRecord(rec record.Record) {
	if rec.Nsp != a.nsp || a.onServerSideEmit == nil {
		return
	}
	if _, err := a.onServerSideEmit(rec.Data.Args); err != nil {
		a.logger.Warn("server-side-emit listener failed", log.Err(err))
	}
}

// handleRequest services an RPC request authored by a peer instance,
// publishing exactly one response or ack record addressed by requestId
// (spec section 4.5: "every requestType expects one response from every
// living peer").
func (a *Adapter) handleRequest(rec record.Record) {
	if rec.Nsp != a.nsp {
		return
	}
	reqType := RequestType(rec.Data.RequestType)
	switch reqType {
	case RequestSockets:
		var args struct {
			Rooms []string `json:"rooms"`
		}
		_ = json.Unmarshal(rec.Data.Args, &args)
		data, _ := json.Marshal(a.host.Sockets(a.nsp, args.Rooms))
		a.respond(rec.Data.RequestID, data)

	case RequestAllRooms:
		seen := make(map[string]struct{})
		for _, sid := range a.host.Sockets(a.nsp, nil) {
			rooms, ok := a.host.SocketRooms(a.nsp, sid)
			if !ok {
				continue
			}
			for _, r := range rooms {
				seen[r] = struct{}{}
			}
		}
		rooms := make([]string, 0, len(seen))
		for r := range seen {
			rooms = append(rooms, r)
		}
		data, _ := json.Marshal(rooms)
		a.respond(rec.Data.RequestID, data)

	case RequestRemoteJoin:
		var args struct {
			Sids  []string `json:"sids"`
			Rooms []string `json:"rooms"`
		}
		_ = json.Unmarshal(rec.Data.Args, &args)
		for _, sid := range args.Sids {
			a.host.AddAll(a.nsp, sid, args.Rooms)
		}
		a.ack(rec.Data.RequestID, nil)

	case RequestRemoteLeave:
		var args struct {
			Sids  []string `json:"sids"`
			Rooms []string `json:"rooms"`
		}
		_ = json.Unmarshal(rec.Data.Args, &args)
		for _, sid := range args.Sids {
			for _, room := range args.Rooms {
				a.host.Del(a.nsp, sid, room)
			}
		}
		a.ack(rec.Data.RequestID, nil)

	case RequestRemoteDisconnect:
		var args struct {
			Rooms  []string `json:"rooms"`
			Except []string `json:"except"`
			Close  bool     `json:"close"`
		}
		_ = json.Unmarshal(rec.Data.Args, &args)
		for _, sid := range a.roomCandidates(args.Rooms, args.Except) {
			if err := a.host.Disconnect(a.nsp, sid, args.Close); err != nil {
				a.logger.Debug("remote disconnect failed", log.Str("sid", sid), log.Err(err))
			}
		}
		a.ack(rec.Data.RequestID, nil)

	case RequestRemoteFetch:
		var args struct {
			Rooms  []string `json:"rooms"`
			Except []string `json:"except"`
		}
		_ = json.Unmarshal(rec.Data.Args, &args)
		var infos []SocketInfo
		for _, sid := range a.roomCandidates(args.Rooms, args.Except) {
			meta, _ := a.host.FetchMeta(a.nsp, sid)
			infos = append(infos, SocketInfo{Sid: sid, Nsp: a.nsp, Meta: meta})
		}
		data, _ := json.Marshal(infos)
		a.respond(rec.Data.RequestID, data)

	case RequestServerSideEmit:
		var ack json.RawMessage
		if a.onServerSideEmit != nil {
			var err error
			ack, err = a.onServerSideEmit(rec.Data.Args)
			if err != nil {
				a.logger.Warn("server-side-emit ack listener failed", log.Err(err))
			}
		}
		a.ack(rec.Data.RequestID, ack)

	case RequestBroadcastWithAck:
		var args struct {
			Packet []byte               `json:"packet"`
			Opts   *record.BroadcastOpts `json:"opts"`
		}
		_ = json.Unmarshal(rec.Data.Args, &args)
		delivered := 0
		for _, sid := range a.roomCandidates(optRooms(args.Opts), optExcept(args.Opts)) {
			if err := a.host.Send(a.nsp, sid, args.Packet); err == nil {
				delivered++
			}
		}
		data, _ := json.Marshal(delivered)
		a.ack(rec.Data.RequestID, data)
	}
}

func (a *Adapter) respond(requestID string, data json.RawMessage) {
	if err := a.publisher.publishResponse(a.ctx, a.nsp, requestID, data); err != nil {
		a.logger.Warn("publish response failed", log.Err(err))
	}
}

func (a *Adapter) ack(requestID string, data json.RawMessage) {
	if err := a.publisher.publishAck(a.ctx, a.nsp, requestID, data); err != nil {
		a.logger.Warn("publish ack failed", log.Err(err))
	}
}

func (a *Adapter) roomCandidates(rooms, except []string) []string {
	candidates := a.host.Sockets(a.nsp, rooms)
	if len(except) == 0 {
		return candidates
	}
	excluded := make(map[string]struct{})
	for _, sid := range a.host.Sockets(a.nsp, except) {
		excluded[sid] = struct{}{}
	}
	out := candidates[:0:0]
	for _, sid := range candidates {
		if _, ok := excluded[sid]; !ok {
			out = append(out, sid)
		}
	}
	return out
}

func optRooms(o *record.BroadcastOpts) []string {
	if o == nil {
		return nil
	}
	return o.Rooms
}

func optExcept(o *record.BroadcastOpts) []string {
	if o == nil {
		return nil
	}
	return o.Except
}

// --- broadcastRequest: the shared request/await plumbing -------------------

// broadcastRequest publishes a request record and blocks until every living
// peer has responded or the configured requestsTimeout elapses, returning
// whatever was collected (spec section 4.5).
func (a *Adapter) broadcastRequest(ctx context.Context, reqType RequestType, argsVal interface{}) ([]json.RawMessage, error) {
	args, err := json.Marshal(argsVal)
	if err != nil {
		return nil, err
	}
	expected := a.hb.clusterSize()
	requestID, _, err := a.publisher.publishRequest(ctx, a.nsp, reqType, args)
	if err != nil {
		return nil, err
	}
	pending := a.rpc.register(requestID, reqType, expected)
	return a.rpc.await(ctx, pending, a.cfg.RequestsTimeout())
}

// --- Adapter contract (spec section 6) --------------------------------------

// Broadcast publishes packet to the shared collection (unless
// opts.Flags["local"]) and always applies it to this process's matching
// local clients. The returned offset is nil if the record was local-only.
func (a *Adapter) Broadcast(ctx context.Context, packet []byte, opts *record.BroadcastOpts) ([]byte, error) {
	offset, err := a.publisher.publishBroadcast(ctx, a.nsp, packet, opts)
	localDelivery(a.host, a.nsp, packet, opts, offset, a.sessions, a.store.Compare, a.logger)
	return offset, err
}

// BroadcastWithAck behaves like Broadcast but additionally waits for every
// peer's delivery-count ack, returning the local delivery count alongside
// the raw remote acks.
func (a *Adapter) BroadcastWithAck(ctx context.Context, packet []byte, opts *record.BroadcastOpts) (localDelivered int, remote []json.RawMessage, err error) {
	offset, pubErr := a.publisher.publishBroadcast(ctx, a.nsp, packet, opts)
	for _, sid := range a.roomCandidates(optRooms(opts), optExcept(opts)) {
		if sendErr := a.host.Send(a.nsp, sid, packet); sendErr == nil {
			localDelivered++
			if len(offset) > 0 {
				a.sessions.advanceOffset(sid, offset, a.store.Compare)
			}
		}
	}
	if pubErr != nil {
		return localDelivered, nil, pubErr
	}
	remote, err = a.broadcastRequest(ctx, RequestBroadcastWithAck, struct {
		Packet []byte                 `json:"packet"`
		Opts   *record.BroadcastOpts  `json:"opts"`
	}{Packet: packet, Opts: opts})
	return localDelivered, remote, err
}

// FetchSockets returns the union of sids, local and remote, currently
// joined to any of rooms (all sockets in the namespace if rooms is empty).
func (a *Adapter) FetchSockets(ctx context.Context, rooms []string) ([]string, error) {
	local := a.host.Sockets(a.nsp, rooms)
	raw, err := a.broadcastRequest(ctx, RequestSockets, struct {
		Rooms []string `json:"rooms"`
	}{Rooms: rooms})

	seen := make(map[string]struct{}, len(local))
	out := append([]string(nil), local...)
	for _, s := range local {
		seen[s] = struct{}{}
	}
	for _, r := range raw {
		var sids []string
		if jsonErr := json.Unmarshal(r, &sids); jsonErr != nil {
			continue
		}
		for _, s := range sids {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out, err
}

// FetchAllRooms returns the union of room names in use anywhere in the
// cluster for this namespace.
func (a *Adapter) FetchAllRooms(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, sid := range a.host.Sockets(a.nsp, nil) {
		if rooms, ok := a.host.SocketRooms(a.nsp, sid); ok {
			for _, r := range rooms {
				seen[r] = struct{}{}
			}
		}
	}
	raw, err := a.broadcastRequest(ctx, RequestAllRooms, struct{}{})
	for _, r := range raw {
		var rooms []string
		if jsonErr := json.Unmarshal(r, &rooms); jsonErr != nil {
			continue
		}
		for _, room := range rooms {
			seen[room] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	return out, err
}

// FetchSocketInfo returns a detailed view of every socket matching rooms,
// local and remote (spec section 6, "fetchSockets with socket details").
func (a *Adapter) FetchSocketInfo(ctx context.Context, rooms, except []string) ([]SocketInfo, error) {
	var infos []SocketInfo
	for _, sid := range a.roomCandidates(rooms, except) {
		meta, _ := a.host.FetchMeta(a.nsp, sid)
		infos = append(infos, SocketInfo{Sid: sid, Nsp: a.nsp, Meta: meta})
	}
	raw, err := a.broadcastRequest(ctx, RequestRemoteFetch, struct {
		Rooms  []string `json:"rooms"`
		Except []string `json:"except"`
	}{Rooms: rooms, Except: except})
	for _, r := range raw {
		var remoteInfos []SocketInfo
		if jsonErr := json.Unmarshal(r, &remoteInfos); jsonErr != nil {
			continue
		}
		infos = append(infos, remoteInfos...)
	}
	return infos, err
}

// Join adds sid to rooms if it is connected locally; otherwise it instructs
// the cluster to do so wherever sid actually lives.
func (a *Adapter) Join(ctx context.Context, sid string, rooms []string) error {
	if _, ok := a.host.SocketRooms(a.nsp, sid); ok {
		a.host.AddAll(a.nsp, sid, rooms)
		return nil
	}
	_, err := a.broadcastRequest(ctx, RequestRemoteJoin, struct {
		Sids  []string `json:"sids"`
		Rooms []string `json:"rooms"`
	}{Sids: []string{sid}, Rooms: rooms})
	return err
}

// Leave removes sid from rooms, locally or across the cluster.
func (a *Adapter) Leave(ctx context.Context, sid string, rooms []string) error {
	if _, ok := a.host.SocketRooms(a.nsp, sid); ok {
		for _, room := range rooms {
			a.host.Del(a.nsp, sid, room)
		}
		return nil
	}
	_, err := a.broadcastRequest(ctx, RequestRemoteLeave, struct {
		Sids  []string `json:"sids"`
		Rooms []string `json:"rooms"`
	}{Sids: []string{sid}, Rooms: rooms})
	return err
}

// DisconnectSockets disconnects every socket matching rooms (minus except),
// local and remote.
func (a *Adapter) DisconnectSockets(ctx context.Context, rooms, except []string, shouldClose bool) error {
	for _, sid := range a.roomCandidates(rooms, except) {
		if err := a.host.Disconnect(a.nsp, sid, shouldClose); err != nil {
			a.logger.Debug("disconnect failed", log.Str("sid", sid), log.Err(err))
		}
	}
	_, err := a.broadcastRequest(ctx, RequestRemoteDisconnect, struct {
		Rooms  []string `json:"rooms"`
		Except []string `json:"except"`
		Close  bool     `json:"close"`
	}{Rooms: rooms, Except: except, Close: shouldClose})
	return err
}

// ServerSideEmit fires args at every instance's namespace-level listeners
// without waiting for any reply.
func (a *Adapter) ServerSideEmit(ctx context.Context, args json.RawMessage) error {
	_, err := a.publisher.publishServerSideEmit(ctx, a.nsp, args)
	return err
}

// ServerSideEmitWithAck behaves like ServerSideEmit but aggregates one ack
// from every peer's listener.
func (a *Adapter) ServerSideEmitWithAck(ctx context.Context, args json.RawMessage) ([]json.RawMessage, error) {
	return a.broadcastRequest(ctx, RequestServerSideEmit, args)
}

// CreateSession registers a freshly-connected socket as a recoverable
// session (spec section 4.6 step 0). pid is the connection-recovery id the
// host framework hands the client; it is opaque to the adapter.
func (a *Adapter) CreateSession(pid, sid string, rooms []string) *Session {
	sess := &Session{Sid: sid, Pid: pid, Nsp: a.nsp, Rooms: append([]string(nil), rooms...)}
	a.sessions.create(sess)
	return sess
}

// PersistSession marks sid's session RECOVERABLE, starting its grace
// window, and (if configured) writes a durable session row so recovery
// survives this instance crashing before the client reconnects.
func (a *Adapter) PersistSession(ctx context.Context, sid string) error {
	now := time.Now()
	a.sessions.markDisconnected(sid, now)
	if a.cfg.SessionPersistence != config.SessionPersistenceStore {
		return nil
	}
	sess, ok := a.sessions.getBySid(sid)
	if !ok {
		return nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	rec := record.Record{
		Type: record.TypeSession,
		Nsp:  a.nsp,
		UID:  a.uid,
		Data: record.Data{ResponseData: data},
	}
	_, err = a.publisher.insertWithRetry(ctx, rec)
	return err
}

// RestoreSession runs spec section 4.6's five-step recovery against a
// reconnecting client presenting (pid, lastOffset) on a new sid.
func (a *Adapter) RestoreSession(ctx context.Context, pid, newSid string, lastOffset []byte) (*Session, error) {
	sess, err := a.recovery.restore(ctx, pid, newSid, lastOffset)
	if err == nil || !errors.Is(err, ErrSessionUnknown) {
		return sess, err
	}
	if a.cfg.SessionPersistence != config.SessionPersistenceStore {
		return nil, err
	}
	// Fall back to scanning every retained TypeSession row for pid: the
	// owning instance may have crashed before this process ever saw the
	// session (spec section 4.6 step 1, option (a)).
	restored, findErr := a.findPersistedSession(ctx, pid)
	if findErr != nil {
		return nil, err
	}
	a.sessions.create(restored)
	return a.recovery.restore(ctx, pid, newSid, lastOffset)
}

func (a *Adapter) findPersistedSession(ctx context.Context, pid string) (*Session, error) {
	rows, err := a.store.Read(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	var found *Session
	for _, raw := range rows {
		rec, decodeErr := record.Decode(raw.Body, raw.Offset)
		if decodeErr != nil || rec.Type != record.TypeSession || rec.Nsp != a.nsp {
			continue
		}
		var sess Session
		if jsonErr := json.Unmarshal(rec.Data.ResponseData, &sess); jsonErr != nil {
			continue
		}
		if sess.Pid == pid {
			found = &sess
		}
	}
	if found == nil {
		return nil, ErrSessionUnknown
	}
	return found, nil
}

// DestroySession removes sid's session unconditionally, e.g. on a clean
// client-initiated disconnect where recovery is not wanted.
func (a *Adapter) DestroySession(sid string) {
	a.sessions.destroy(sid)
}

// Filter exposes the compiled diagnostic predicate (spec section 9) for use
// by an admin surface tailing this adapter's store directly.
func (a *Adapter) Filter() recordFilter {
	return a.filter
}

// Peers returns the uids of every instance currently considered alive by
// this instance's heartbeat tracker (spec section 9, "peer diagnostics").
func (a *Adapter) Peers() []string {
	return a.hb.peerList()
}

// Sessions returns a snapshot of every session this instance currently
// tracks, for the admin diagnostic surface.
func (a *Adapter) Sessions() []*Session {
	return a.sessions.all()
}

// Store exposes the underlying event collection for an admin surface that
// wants to tail raw records directly (spec section 9).
func (a *Adapter) Store() store.Store {
	return a.store
}

// UID returns this instance's identifier, as carried on every record it
// authors.
func (a *Adapter) UID() string {
	return a.uid
}

// Nsp returns the namespace this adapter instance serves.
func (a *Adapter) Nsp() string {
	return a.nsp
}
