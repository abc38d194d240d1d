package adapter

import "errors"

// Sentinel errors forming the taxonomy of spec section 7. Callers should
// compare with errors.Is; wrapped variants carry additional context via
// fmt.Errorf("...: %w", ...).
var (
	// ErrStoreUnavailable means an insert or read against the shared event
	// collection failed transiently. Publishers retry a bounded number of
	// times before giving up with ErrPublishFailed; the stream listener
	// retries unbounded with backoff.
	ErrStoreUnavailable = errors.New("adapter: store unavailable")

	// ErrStreamGone means the tailing cursor could not be resumed and the
	// listener cannot make progress. Fatal; surfaced via Adapter.Err().
	ErrStreamGone = errors.New("adapter: stream gone")

	// ErrMalformedRecord means a record failed to decode or validate.
	// The listener logs and skips it; dispatch continues.
	ErrMalformedRecord = errors.New("adapter: malformed record")

	// ErrSessionUnknown means a recovery attempt referenced a pid with no
	// known session, locally or (if configured) in the store.
	ErrSessionUnknown = errors.New("adapter: session unknown")

	// ErrOffsetInvalid means a recovery attempt's lastOffset does not parse
	// or is older than the oldest retained record.
	ErrOffsetInvalid = errors.New("adapter: offset invalid")

	// ErrRPCTimeout means a pending RPC's deadline elapsed before every
	// expected response arrived; the caller is resolved with partials.
	ErrRPCTimeout = errors.New("adapter: rpc timeout")

	// ErrPublishFailed means a broadcast/request insert failed after
	// exhausting the publisher's retry budget. Local delivery, if any, is
	// unaffected.
	ErrPublishFailed = errors.New("adapter: publish failed")
)

// deliveryError records a per-socket send failure. It is swallowed by Local
// delivery (spec 4.4) but retained for diagnostics via logging.
type deliveryError struct {
	sid string
	err error
}

func (e *deliveryError) Error() string {
	return "adapter: delivery failed for " + e.sid + ": " + e.err.Error()
}

func (e *deliveryError) Unwrap() error { return e.err }
