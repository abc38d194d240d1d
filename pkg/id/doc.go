// Package id provides the 128-bit, lexicographically sortable identifier
// used as the event collection's monotone offset.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// This guarantees that byte-wise comparison preserves chronological order,
// and that IDs generated within the same millisecond remain strictly
// increasing by sequence — the ordering invariant the event log's store
// side is required to provide.
//
// # Monotonicity
//
// The Generator ensures per-process monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     increments the sequence to avoid going backwards.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond before emitting the next ID.
//
// Usage
//
//	g := id.NewGenerator()
//	offset := g.Next()
//	b := offset.Bytes()   // 16-byte representation, used as the stream cursor
//	s := offset.String()  // 32-char hex string
package id
