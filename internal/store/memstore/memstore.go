// Package memstore is an in-memory store.Store used by unit tests, where
// multiple adapter instances share one in-process "datastore" the way they
// would share a real capped collection in production.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/id"
)

type row struct {
	offset id.ID
	body   []byte
}

// Store is a mutex-guarded, append-only slice backing store.Store. It
// never caps or trims — tests that need capping/trim semantics use
// pebblestore instead.
type Store struct {
	gen *id.Generator

	mu    sync.Mutex
	rows  []row
	notCh chan struct{}
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{gen: id.NewGenerator(), notCh: make(chan struct{})}
}

func (s *Store) Insert(_ context.Context, body []byte, _ time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.gen.Next()
	s.rows = append(s.rows, row{offset: off, body: append([]byte(nil), body...)})
	close(s.notCh)
	s.notCh = make(chan struct{})
	return off.Bytes(), nil
}

func (s *Store) Oldest(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return nil, store.ErrNotFound
	}
	return s.rows[0].offset.Bytes(), nil
}

func (s *Store) Latest(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return nil, store.ErrNotFound
	}
	return s.rows[len(s.rows)-1].offset.Bytes(), nil
}

func (s *Store) Read(_ context.Context, after []byte, limit int) ([]store.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Raw, 0, 8)
	for _, r := range s.rows {
		if len(after) == 16 {
			var a id.ID
			copy(a[:], after)
			if r.offset.Compare(a) <= 0 {
				continue
			}
		}
		out = append(out, store.Raw{Offset: r.offset.Bytes(), Body: r.body})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Compare(a, b []byte) int {
	var ai, bi id.ID
	copy(ai[:], a)
	copy(bi[:], b)
	return ai.Compare(bi)
}

func (s *Store) Tail(ctx context.Context, after []byte) (store.Cursor, error) {
	c := &cursor{s: s, pos: append([]byte(nil), after...)}
	return c, nil
}

type cursor struct {
	s   *Store
	pos []byte
}

func (c *cursor) Next(ctx context.Context) (store.Raw, error) {
	for {
		c.s.mu.Lock()
		for _, r := range c.s.rows {
			if len(c.pos) == 16 {
				var p id.ID
				copy(p[:], c.pos)
				if r.offset.Compare(p) <= 0 {
					continue
				}
			}
			c.pos = r.offset.Bytes()
			out := store.Raw{Offset: r.offset.Bytes(), Body: r.body}
			c.s.mu.Unlock()
			return out, nil
		}
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
