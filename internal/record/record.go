// Package record implements the event codec: the self-describing record
// that is the unit stored in and tailed from the shared event collection.
//
// Every record carries a discriminator (Type), the namespace it belongs to,
// the uid of the instance that authored it, and a Type-specific Data
// payload. Encoding is lossless for the opaque packet payload and
// normalizes Rooms/Except to sorted string slices so equality and diffing
// are deterministic.
package record

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"sort"
)

// Type discriminates the kind of record stored in the event collection.
type Type string

const (
	TypeBroadcast       Type = "broadcast"
	TypeRequest         Type = "request"
	TypeResponse        Type = "response"
	TypeAck             Type = "ack"
	TypeServerSideEmit  Type = "server-side-emit"
	TypeHeartbeat       Type = "heartbeat"
	// TypeSession is an optional materialized session row, written at
	// disconnect time when sessionPersistence is configured to survive
	// loss of the owning instance (spec section 3, "may be materialized as
	// an additional row kind").
	TypeSession Type = "session"
)

// ErrMalformedRecord is returned (and wrapped) when a raw record fails to
// decode: unknown Type, missing required fields, or a CRC mismatch.
var ErrMalformedRecord = errors.New("record: malformed")

// BroadcastOpts carries the routing metadata for a broadcast-kind record.
type BroadcastOpts struct {
	Rooms   []string          `json:"rooms,omitempty"`
	Except  []string          `json:"except,omitempty"`
	Flags   map[string]bool   `json:"flags,omitempty"`
}

// Normalize sorts Rooms/Except in place and drops empty entries so that two
// semantically-equal option sets compare equal byte-for-byte once encoded.
func (o *BroadcastOpts) Normalize() {
	o.Rooms = normalizeSet(o.Rooms)
	o.Except = normalizeSet(o.Except)
}

func normalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Data is the Type-specific payload. Only the fields relevant to the
// record's Type are populated; json omits the rest.
type Data struct {
	// broadcast
	Packet []byte         `json:"packet,omitempty"`
	Opts   *BroadcastOpts `json:"opts,omitempty"`

	// request
	RequestID   string          `json:"requestId,omitempty"`
	RequestType string          `json:"requestType,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`

	// response / ack
	ResponseData json.RawMessage `json:"data,omitempty"`
}

// Record is one row of the shared, capped, time-ordered event collection.
type Record struct {
	// Offset is assigned by the store at insert time; zero until inserted.
	Offset       []byte `json:"-"`
	CreatedAtMs  int64  `json:"createdAt,omitempty"`
	Type         Type   `json:"type"`
	Nsp          string `json:"nsp"`
	UID          string `json:"uid"`
	Data         Data   `json:"data"`
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Encode serializes r into the on-the-wire envelope:
// varint(len(json)) | json | crc32c(json).
func Encode(r Record) ([]byte, error) {
	if r.Type == "" || r.Nsp == "" || r.UID == "" {
		return nil, errors.Join(ErrMalformedRecord, errors.New("record: missing required field"))
	}
	if r.Data.Opts != nil {
		r.Data.Opts.Normalize()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var lenBuf [10]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(body)))

	out := make([]byte, 0, n+len(body)+4)
	out = append(out, lenBuf[:n]...)
	out = append(out, body...)

	crc := crc32.Checksum(body, crcTable)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)
	return out, nil
}

// Decode parses the envelope written by Encode. Offset must be supplied by
// the caller (the store assigns it; it is not part of the wire body).
func Decode(b []byte, offset []byte) (Record, error) {
	if len(b) < 1+4 {
		return Record{}, ErrMalformedRecord
	}
	bodyLen, n := binary.Uvarint(b)
	if n <= 0 || n+int(bodyLen)+4 > len(b) {
		return Record{}, ErrMalformedRecord
	}
	body := b[n : n+int(bodyLen)]
	trailer := b[n+int(bodyLen):]
	want := binary.BigEndian.Uint32(trailer[:4])
	got := crc32.Checksum(body, crcTable)
	if want != got {
		return Record{}, errors.Join(ErrMalformedRecord, errors.New("record: crc mismatch"))
	}

	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return Record{}, errors.Join(ErrMalformedRecord, err)
	}
	switch r.Type {
	case TypeBroadcast, TypeRequest, TypeResponse, TypeAck, TypeServerSideEmit, TypeHeartbeat, TypeSession:
	default:
		return Record{}, errors.Join(ErrMalformedRecord, errors.New("record: unknown type "+string(r.Type)))
	}
	if r.Nsp == "" || r.UID == "" {
		return Record{}, errors.Join(ErrMalformedRecord, errors.New("record: missing nsp/uid"))
	}
	r.Offset = append([]byte(nil), offset...)
	return r, nil
}

// Equal reports whether two records are byte-identical once re-encoded,
// ignoring Offset (which the store, not the codec, assigns).
func Equal(a, b Record) bool {
	a.Offset, b.Offset = nil, nil
	ea, err1 := Encode(a)
	eb, err2 := Encode(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
