package adapter

import (
	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

// localDelivery implements spec section 4.4: apply a received (or
// locally-originated) broadcast to this process's matching clients.
//
// flags.volatile and flags.compress are accepted for wire compatibility but
// are not actionable against the minimal Host.Send primitive this adapter
// consumes; a Host implementation that wants to honor them can inspect the
// packet itself. flags.local only affects whether Publisher inserts a
// stream record in the first place (publisher.go); by the time a broadcast
// reaches localDelivery it is always delivered locally regardless of that
// flag.
func localDelivery(host Host, nsp string, packet []byte, opts *record.BroadcastOpts, offset []byte, sessions *sessionTable, cmp func(a, b []byte) int, logger log.Logger) {
	var rooms []string
	var except []string
	if opts != nil {
		rooms = opts.Rooms
		except = opts.Except
	}

	candidates := host.Sockets(nsp, rooms)
	if len(except) > 0 {
		excluded := make(map[string]struct{})
		for _, sid := range host.Sockets(nsp, except) {
			excluded[sid] = struct{}{}
		}
		filtered := candidates[:0:0]
		for _, sid := range candidates {
			if _, ok := excluded[sid]; !ok {
				filtered = append(filtered, sid)
			}
		}
		candidates = filtered
	}

	for _, sid := range candidates {
		if err := host.Send(nsp, sid, packet); err != nil {
			logger.Debug("delivery failed", log.Str("sid", sid), log.Str("nsp", nsp), log.Err(err))
			continue
		}
		if len(offset) > 0 && sessions != nil {
			sessions.advanceOffset(sid, offset, cmp)
		}
	}
}
