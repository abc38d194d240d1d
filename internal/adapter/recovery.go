package adapter

import (
	"context"
	"errors"

	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

// offsetWidth is the width in bytes of every offset this adapter's store
// implementations assign (pkg/id.ID). A lastOffset of any other length
// cannot have been issued by this cluster and is rejected as invalid.
const offsetWidth = 16

// recoveryService implements spec section 4.6: restoring a reconnecting
// session's room membership and replaying what it missed.
type recoveryService struct {
	st       store.Store
	sessions *sessionTable
	host     Host
	cmp      func(a, b []byte) int
	logger   log.Logger
}

func newRecoveryService(st store.Store, sessions *sessionTable, host Host, cmp func(a, b []byte) int, logger log.Logger) *recoveryService {
	return &recoveryService{st: st, sessions: sessions, host: host, cmp: cmp, logger: logger.WithComponent("recovery")}
}

// restore runs the five steps of spec section 4.6 against a client
// presenting (pid, lastOffset) on a fresh connection newSid.
func (r *recoveryService) restore(ctx context.Context, pid, newSid string, lastOffset []byte) (*Session, error) {
	sess, ok := r.sessions.get(pid)
	if !ok {
		return nil, ErrSessionUnknown
	}

	if len(lastOffset) != offsetWidth {
		return nil, ErrOffsetInvalid
	}
	oldest, err := r.st.Oldest(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err == nil && r.cmp(lastOffset, oldest) < 0 {
		return nil, ErrOffsetInvalid
	}

	// Step 3: room re-join, before any replay is delivered.
	if len(sess.Rooms) > 0 {
		r.host.AddAll(sess.Nsp, newSid, sess.Rooms)
	}

	// Step 4: replay every broadcast after lastOffset matching nsp/rooms.
	cur := append([]byte(nil), lastOffset...)
	rows, err := r.st.Read(ctx, lastOffset, 0)
	if err != nil {
		r.logger.Warn("replay query failed", log.Str("pid", pid), log.Err(err))
	} else {
		for _, raw := range rows {
			rec, err := record.Decode(raw.Body, raw.Offset)
			if err != nil {
				continue
			}
			if rec.Type != record.TypeBroadcast || rec.Nsp != sess.Nsp {
				continue
			}
			if !matchesSessionRooms(sess.Rooms, rec.Data.Opts) {
				continue
			}
			if err := r.host.Send(sess.Nsp, newSid, rec.Data.Packet); err != nil {
				r.logger.Debug("replay delivery failed, stopping replay", log.Str("sid", newSid), log.Err(err))
				break
			}
			cur = rec.Offset
		}
	}

	// Step 5: resume — mark live under the new sid, future delivery is
	// ordinary localDelivery.
	resumed, ok := r.sessions.resume(pid, newSid)
	if !ok {
		return nil, ErrSessionUnknown
	}
	r.sessions.advanceOffset(newSid, cur, r.cmp)
	resumed.LastOffset = cur
	return resumed, nil
}

// matchesSessionRooms evaluates a broadcast's (rooms, except) routing
// against a recovering session's recorded room set, mirroring
// localDelivery's candidate-selection rules but against a snapshot instead
// of live host membership.
func matchesSessionRooms(sessionRooms []string, opts *record.BroadcastOpts) bool {
	if opts == nil {
		return true
	}
	if len(opts.Except) > 0 && stringSetsIntersect(sessionRooms, opts.Except) {
		return false
	}
	if len(opts.Rooms) == 0 {
		return true
	}
	return stringSetsIntersect(sessionRooms, opts.Rooms)
}

func stringSetsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
