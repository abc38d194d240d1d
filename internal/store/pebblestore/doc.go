// Package pebblestore implements store.Store on top of Pebble: a single,
// flat, append-only keyspace standing in for the shared capped collection
// the adapter is federated over.
//
// # Keyspace
//
//	evt/e/{offset_16B}  -> encoded record body
//	evt/meta            -> last-issued offset (16B), for Generator reseeding on restart
//
// Offsets are the 128-bit, lexicographically sortable ids from pkg/id: an
// 8-byte millisecond timestamp followed by an 8-byte per-millisecond
// sequence. Byte-wise key ordering is therefore chronological ordering,
// which is what makes SeekGE-based tailing and ascending replay correct.
//
// # Capping
//
// The collection is capped two ways, mirroring a real capped/TTL
// collection: TrimOlderThan deletes rows whose offset's embedded
// millisecond timestamp is older than a cutoff, and TrimToMaxRows caps the
// total retained row count. Both are invoked by a background janitor
// goroutine owned by the caller (internal/adapter does not itself run
// trimming; cmd/fanoutd wires a ticker calling these).
//
// # Tailing
//
// Tail returns a Cursor that performs a SeekGE scan and, upon exhausting
// currently-visible rows, blocks on a notify channel that Insert closes
// and replaces on every write — the same wait/notify idiom the teacher's
// event log used for blocking reads.
package pebblestore
