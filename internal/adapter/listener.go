package adapter

import (
	"container/list"
	"context"
	"errors"
	"time"

	"github.com/gynzy/socket.io-mongo-adapter/internal/record"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

const (
	listenerBaseBackoff = 50 * time.Millisecond
	listenerMaxBackoff  = 5 * time.Second
	listenerInitPage    = 256
)

// dupCache is a bounded recently-seen-offset LRU preventing duplicate
// dispatch at cursor-resume boundaries (spec section 4.3).
type dupCache struct {
	max   int
	ll    *list.List
	index map[string]*list.Element
}

func newDupCache(max int) *dupCache {
	if max <= 0 {
		max = 1
	}
	return &dupCache{max: max, ll: list.New(), index: make(map[string]*list.Element, max)}
}

func (c *dupCache) seenAndAdd(key string) bool {
	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		return true
	}
	el := c.ll.PushFront(key)
	c.index[key] = el
	if c.ll.Len() > c.max {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(string))
		}
	}
	return false
}

// listener implements spec section 4.3: a single resumable cursor per
// process tailing the shared event collection, dispatching records in
// strict offset order while ignoring anything authored by self.
//
// Grounded on eventlog's Read/WaitForAppend resumable forward scan,
// generalized into a continuous dispatch loop with a bounded dedup LRU and
// exponential backoff on transient store errors.
type listener struct {
	st            store.Store
	uid           string
	overlapMargin int
	dupCacheSize  int
	logger        log.Logger

	onBroadcast      func(rec record.Record)
	onRequest        func(rec record.Record)
	onResponse       func(rec record.Record)
	onAck            func(rec record.Record)
	onServerSideEmit func(rec record.Record)
	onHeartbeat      func(uid string)

	start    []byte
	startErr error

	errCh chan error
}

func newListener(st store.Store, uid string, overlapMargin, dupCacheSize int, logger log.Logger) *listener {
	l := &listener{
		st:            st,
		uid:           uid,
		overlapMargin: overlapMargin,
		dupCacheSize:  dupCacheSize,
		logger:        logger.WithComponent("listener"),
		errCh:         make(chan error, 1),
	}
	l.start, l.startErr = initialOffset(context.Background(), st, overlapMargin)
	return l
}

// initialOffset computes the listener's starting cursor position: the
// greatest existing offset at init, minus overlapMargin records, per spec
// section 4.3. It pages through the collection in bounded chunks rather
// than loading it all at once.
func initialOffset(ctx context.Context, st store.Store, overlapMargin int) ([]byte, error) {
	latest, err := st.Latest(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if overlapMargin <= 0 {
		return latest, nil
	}

	window := make([][]byte, 0, overlapMargin+1)
	var after []byte
	for {
		rows, err := st.Read(ctx, after, listenerInitPage)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		for _, r := range rows {
			window = append(window, r.Offset)
			if len(window) > overlapMargin+1 {
				window = window[1:]
			}
		}
		after = rows[len(rows)-1].Offset
		if len(rows) < listenerInitPage {
			break
		}
	}
	if len(window) <= overlapMargin {
		return nil, nil
	}
	return window[0], nil
}

// run drives the dispatch loop until ctx is canceled or a terminal store
// error occurs. It never returns silently on a non-terminal error: cursor
// failures reopen with backoff, unbounded.
func (l *listener) run(ctx context.Context) {
	start, err := l.start, l.startErr
	if err != nil {
		l.fail(err)
		return
	}

	dup := newDupCache(l.dupCacheSize)
	pos := start
	backoff := listenerBaseBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		cur, err := l.st.Tail(ctx, pos)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, store.ErrGone) {
				l.fail(err)
				return
			}
			l.logger.Warn("tail open failed, retrying", log.Err(err))
			if !l.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}

		for {
			raw, err := cur.Next(ctx)
			if err != nil {
				cur.Close()
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, store.ErrGone) {
					l.fail(err)
					return
				}
				l.logger.Warn("cursor read failed, reopening", log.Err(err))
				if !l.sleepBackoff(ctx, &backoff) {
					return
				}
				break
			}

			backoff = listenerBaseBackoff
			pos = raw.Offset

			key := string(raw.Offset)
			if dup.seenAndAdd(key) {
				continue
			}

			rec, err := record.Decode(raw.Body, raw.Offset)
			if err != nil {
				l.logger.Warn("malformed record, skipping", log.Err(err))
				continue
			}
			if rec.UID == l.uid {
				continue
			}
			l.dispatch(rec)
		}
	}
}

func (l *listener) sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > listenerMaxBackoff {
		*backoff = listenerMaxBackoff
	}
	return true
}

func (l *listener) fail(cause error) {
	wrapped := errors.Join(ErrStreamGone, cause)
	l.logger.Error("stream gone", log.Err(wrapped))
	select {
	case l.errCh <- wrapped:
	default:
	}
}

// dispatch routes a decoded record per the table in spec section 4.3.
// Handlers run synchronously on the listener goroutine: the next record is
// not read until the current handler has returned.
func (l *listener) dispatch(rec record.Record) {
	switch rec.Type {
	case record.TypeBroadcast:
		if l.onBroadcast != nil {
			l.onBroadcast(rec)
		}
	case record.TypeRequest:
		if l.onRequest != nil {
			l.onRequest(rec)
		}
	case record.TypeResponse:
		if l.onResponse != nil {
			l.onResponse(rec)
		}
	case record.TypeAck:
		if l.onAck != nil {
			l.onAck(rec)
		}
	case record.TypeServerSideEmit:
		if l.onServerSideEmit != nil {
			l.onServerSideEmit(rec)
		}
	case record.TypeHeartbeat:
		if l.onHeartbeat != nil {
			l.onHeartbeat(rec.UID)
		}
	}
}
