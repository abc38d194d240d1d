package pebblestore

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
)

// Tail opens a resumable, blocking cursor starting strictly after `after`.
func (s *Store) Tail(_ context.Context, after []byte) (store.Cursor, error) {
	return &cursor{s: s, pos: append([]byte(nil), after...)}, nil
}

type cursor struct {
	s    *Store
	pos  []byte
	iter *pebble.Iterator
}

// Next blocks until a row past the cursor's position is available or ctx is
// canceled. It performs a fresh SeekGE on each call rather than holding a
// long-lived iterator across waits, since Pebble iterators do not observe
// writes committed after they were created.
func (c *cursor) Next(ctx context.Context) (store.Raw, error) {
	for {
		low, high := entryRangeBounds()
		it, err := c.s.d.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
		if err != nil {
			return store.Raw{}, store.ErrUnavailable
		}

		var found bool
		var raw store.Raw
		if len(c.pos) == 16 {
			if it.SeekGE(entryKey(c.pos)) {
				if c.s.Compare(offsetFromKey(it.Key()), c.pos) == 0 {
					found = it.Next()
				} else {
					found = true
				}
			}
		} else {
			found = it.First()
		}
		if found {
			raw = store.Raw{Offset: offsetFromKey(it.Key()), Body: append([]byte(nil), it.Value()...)}
		}
		it.Close()

		if found {
			c.pos = raw.Offset
			return raw, nil
		}

		c.s.mu.Lock()
		ch := c.s.notCh
		c.s.mu.Unlock()

		select {
		case <-ctx.Done():
			return store.Raw{}, ctx.Err()
		case <-ch:
		}
	}
}

func (c *cursor) Close() error { return nil }
