package pebblestore

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// TrimOlderThan deletes entries whose offset's embedded millisecond
// timestamp is older than cutoffMs, oldest-first, committing in batches of
// at most batchLimit keys. It returns the number of deleted entries.
func (s *Store) TrimOlderThan(ctx context.Context, cutoffMs int64, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	low, high := entryRangeBounds()
	it, err := s.d.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	deleted := 0
	for ok := it.First(); ok; {
		b := s.d.NewBatch()
		n := 0
		for ok && n < batchLimit {
			off := offsetFromKey(it.Key())
			if lastOffsetMs(off) >= cutoffMs {
				ok = false
				break
			}
			if err := b.Delete(it.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			deleted++
			n++
			ok = it.Next()
		}
		if n > 0 {
			if err := s.d.CommitBatch(ctx, b); err != nil {
				b.Close()
				return deleted, err
			}
		}
		b.Close()
		if n == 0 {
			break
		}
	}
	return deleted, nil
}

// TrimToMaxRows caps the collection at maxRows by deleting the oldest
// entries. A non-positive maxRows disables count-based capping.
func (s *Store) TrimToMaxRows(ctx context.Context, maxRows int, batchLimit int) (int, error) {
	if maxRows <= 0 {
		return 0, nil
	}
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	low, high := entryRangeBounds()
	it, err := s.d.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	total := 0
	for ok := it.First(); ok; ok = it.Next() {
		total++
	}
	overflow := total - maxRows
	if overflow <= 0 {
		return 0, nil
	}

	deleted := 0
	ok := it.First()
	for ok && deleted < overflow {
		b := s.d.NewBatch()
		n := 0
		for ok && n < batchLimit && deleted < overflow {
			if err := b.Delete(it.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			deleted++
			n++
			ok = it.Next()
		}
		if err := s.d.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, err
		}
		b.Close()
	}
	return deleted, nil
}
