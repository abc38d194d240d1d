package pebblestore

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/gynzy/socket.io-mongo-adapter/internal/store"
	"github.com/gynzy/socket.io-mongo-adapter/pkg/id"
)

// Store is the Pebble-backed store.Store implementation: the capped,
// durable event collection every instance in the cluster shares.
type Store struct {
	d   *db
	gen *id.Generator

	mu    sync.Mutex
	notCh chan struct{}
}

// Open opens (or creates) the Pebble database at opts.DataDir and seeds the
// offset generator from the last persisted offset so restarts never
// regress the monotone ordering invariant.
func Open(opts Options) (*Store, error) {
	d, err := openDB(opts)
	if err != nil {
		return nil, err
	}
	gen := id.NewGenerator()
	if b, err := d.Get(metaKey); err == nil && len(b) == 16 {
		var last id.ID
		copy(last[:], b)
		gen.Seed(last)
	}
	return &Store{d: d, gen: gen, notCh: make(chan struct{})}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.d.Close() }

func (s *Store) Insert(ctx context.Context, body []byte, _ time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.gen.Next()
	offBytes := offset.Bytes()

	b := s.d.NewBatch()
	defer b.Close()
	if err := b.Set(entryKey(offBytes), body, nil); err != nil {
		return nil, err
	}
	if err := b.Set(metaKey, offBytes, nil); err != nil {
		return nil, err
	}
	if err := s.d.CommitBatch(ctx, b); err != nil {
		return nil, store.ErrUnavailable
	}

	close(s.notCh)
	s.notCh = make(chan struct{})
	return offBytes, nil
}

func (s *Store) Oldest(_ context.Context) ([]byte, error) {
	low, high := entryRangeBounds()
	it, err := s.d.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, store.ErrUnavailable
	}
	defer it.Close()
	if !it.First() {
		return nil, store.ErrNotFound
	}
	return offsetFromKey(it.Key()), nil
}

func (s *Store) Latest(_ context.Context) ([]byte, error) {
	low, high := entryRangeBounds()
	it, err := s.d.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, store.ErrUnavailable
	}
	defer it.Close()
	if !it.Last() {
		return nil, store.ErrNotFound
	}
	return offsetFromKey(it.Key()), nil
}

func (s *Store) Read(_ context.Context, after []byte, limit int) ([]store.Raw, error) {
	low, high := entryRangeBounds()
	it, err := s.d.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, store.ErrUnavailable
	}
	defer it.Close()

	var ok bool
	if len(after) == 16 {
		ok = it.SeekGE(entryKey(after))
		if ok && s.Compare(offsetFromKey(it.Key()), after) == 0 {
			ok = it.Next()
		}
	} else {
		ok = it.First()
	}

	out := make([]store.Raw, 0, 16)
	for ok && (limit == 0 || len(out) < limit) {
		out = append(out, store.Raw{Offset: offsetFromKey(it.Key()), Body: append([]byte(nil), it.Value()...)})
		ok = it.Next()
	}
	return out, nil
}

func (s *Store) Compare(a, b []byte) int {
	var ai, bi id.ID
	copy(ai[:], a)
	copy(bi[:], b)
	return ai.Compare(bi)
}

func offsetFromKey(key []byte) []byte {
	off := key[len(entryPrefix):]
	return append([]byte(nil), off...)
}

func lastOffsetMs(offset []byte) int64 {
	if len(offset) != 16 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(offset[:8]))
}
