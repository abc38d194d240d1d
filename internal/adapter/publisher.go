package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

// heartbeatNsp is the reserved namespace used for heartbeat records, which
// are cluster-wide rather than namespace-scoped. The codec requires a
// non-empty Nsp on every record (spec section 4.1); this sentinel keeps
// heartbeats out of any real namespace's broadcast matching.
const heartbeatNsp = "*"

// publishMaxAttempts bounds the publisher's insert retry budget before it
// gives up with ErrPublishFailed (spec section 7: "publisher: bounded
// attempts, then PublishFailed").
const publishMaxAttempts = 3

// publisher implements spec section 4.2: insert broadcast/request/response/
// ack/server-side-emit records into the shared event collection.
//
// Grounded on the teacher's channel-service Publish (insert-then-return-
// offset) shape, adapted to the adapter's record kinds.
type publisher struct {
	store        store.Store
	uid          string
	addCreatedAt bool
	retryBase    time.Duration
	logger       log.Logger
}

func newPublisher(st store.Store, uid string, addCreatedAt bool, logger log.Logger) *publisher {
	return &publisher{
		store:        st,
		uid:          uid,
		addCreatedAt: addCreatedAt,
		retryBase:    20 * time.Millisecond,
		logger:       logger.WithComponent("publisher"),
	}
}

// insertWithRetry encodes rec and inserts it, retrying transient store
// errors with linear backoff up to publishMaxAttempts before failing with
// ErrPublishFailed.
func (p *publisher) insertWithRetry(ctx context.Context, rec record.Record) ([]byte, error) {
	if p.addCreatedAt {
		rec.CreatedAtMs = time.Now().UnixMilli()
	}
	body, err := record.Encode(rec)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < publishMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryBase * time.Duration(attempt)):
			}
		}
		offset, err := p.store.Insert(ctx, body, time.UnixMilli(rec.CreatedAtMs))
		if err == nil {
			return offset, nil
		}
		lastErr = err
		p.logger.Warn("insert failed, retrying", log.Int("attempt", attempt+1), log.Err(err))
	}
	p.logger.Error("publish failed after retries", log.Err(lastErr))
	return nil, wrapPublishFailed(lastErr)
}

func wrapPublishFailed(cause error) error {
	if cause == nil {
		return ErrPublishFailed
	}
	return &publishFailedError{cause: cause}
}

type publishFailedError struct{ cause error }

func (e *publishFailedError) Error() string { return "adapter: publish failed: " + e.cause.Error() }
func (e *publishFailedError) Unwrap() []error {
	return []error{ErrPublishFailed, ErrStoreUnavailable, e.cause}
}

// publishBroadcast inserts one broadcast record and returns its assigned
// offset. If opts carries flags.local, no record is inserted at all — the
// caller is expected to still run localDelivery.
func (p *publisher) publishBroadcast(ctx context.Context, nsp string, packet []byte, opts *record.BroadcastOpts) ([]byte, error) {
	if opts != nil && opts.Flags["local"] {
		return nil, nil
	}
	rec := record.Record{
		Type: record.TypeBroadcast,
		Nsp:  nsp,
		UID:  p.uid,
		Data: record.Data{Packet: packet, Opts: opts},
	}
	return p.insertWithRetry(ctx, rec)
}

// publishRequest allocates a fresh requestId, inserts the request record,
// and returns the id and its assigned offset. Registering a pendingRequest
// and awaiting it is the caller's (adapter.go's) responsibility.
func (p *publisher) publishRequest(ctx context.Context, nsp string, requestType RequestType, args json.RawMessage) (requestID string, offset []byte, err error) {
	requestID = uuid.NewString()
	rec := record.Record{
		Type: record.TypeRequest,
		Nsp:  nsp,
		UID:  p.uid,
		Data: record.Data{RequestID: requestID, RequestType: string(requestType), Args: args},
	}
	offset, err = p.insertWithRetry(ctx, rec)
	return requestID, offset, err
}

// publishResponse inserts a response record addressed by requestID.
func (p *publisher) publishResponse(ctx context.Context, nsp, requestID string, data json.RawMessage) error {
	rec := record.Record{
		Type: record.TypeResponse,
		Nsp:  nsp,
		UID:  p.uid,
		Data: record.Data{RequestID: requestID, ResponseData: data},
	}
	_, err := p.insertWithRetry(ctx, rec)
	return err
}

// publishAck inserts a single-response ack record, used to answer the
// join, leave, disconnect, server-side-emit and broadcast-with-ack requests.
func (p *publisher) publishAck(ctx context.Context, nsp, requestID string, data json.RawMessage) error {
	rec := record.Record{
		Type: record.TypeAck,
		Nsp:  nsp,
		UID:  p.uid,
		Data: record.Data{RequestID: requestID, ResponseData: data},
	}
	_, err := p.insertWithRetry(ctx, rec)
	return err
}

// publishServerSideEmit inserts a server-side-emit record: delivered to
// other instances' namespace-level listeners, never to client sockets.
func (p *publisher) publishServerSideEmit(ctx context.Context, nsp string, args json.RawMessage) ([]byte, error) {
	rec := record.Record{
		Type: record.TypeServerSideEmit,
		Nsp:  nsp,
		UID:  p.uid,
		Data: record.Data{Args: args},
	}
	return p.insertWithRetry(ctx, rec)
}

// publishHeartbeat inserts a heartbeat record announcing this instance is
// alive (spec section 4.5, "Cluster-size estimation").
func (p *publisher) publishHeartbeat(ctx context.Context) error {
	rec := record.Record{
		Type: record.TypeHeartbeat,
		Nsp:  heartbeatNsp,
		UID:  p.uid,
	}
	_, err := p.insertWithRetry(ctx, rec)
	return err
}
