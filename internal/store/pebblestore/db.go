package pebblestore

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways forces a WAL fsync on each committed batch.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by letting Pebble coalesce WAL
	// syncs for writes within the configured interval.
	FsyncModeInterval
	// FsyncModeNever never forces a WAL sync from the application.
	FsyncModeNever
)

// Options configures the Pebble wrapper.
type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	PebbleOptions *pebble.Options
}

// db wraps a Pebble instance with a durability policy. It is the thin KV
// layer Store is built on; callers use Store, not db, directly.
type db struct {
	inner     *pebble.DB
	writeSync bool
}

func openDB(opts Options) (*db, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync passed explicitly on commit below.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return opts.FsyncInterval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &db{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

func (d *db) Close() error {
	if d == nil || d.inner == nil {
		return nil
	}
	return d.inner.Close()
}

func (d *db) NewBatch() *pebble.Batch { return d.inner.NewBatch() }

func (d *db) CommitBatch(_ context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebblestore: nil batch")
	}
	sync := pebble.NoSync
	if d.writeSync {
		sync = pebble.Sync
	}
	return b.Commit(sync)
}

func (d *db) Set(key, value []byte) error {
	b := d.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return d.CommitBatch(context.Background(), b)
}

func (d *db) Get(key []byte) ([]byte, error) {
	val, closer, err := d.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (d *db) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return d.inner.NewIter(opts)
}

func (d *db) CompactRange(start, end []byte) error {
	return d.inner.Compact(start, end, true)
}
