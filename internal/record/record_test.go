package record

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := Record{
		CreatedAtMs: 1234,
		Type:        TypeBroadcast,
		Nsp:         "/",
		UID:         "instance-a",
		Data: Data{
			Packet: []byte("hello"),
			Opts:   &BroadcastOpts{Rooms: []string{"b", "a"}, Except: []string{"z"}},
		},
	}
	enc, err := Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := Decode(enc, []byte{0, 0, 0, 0, 0, 0, 0, 1})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Type != r.Type || dec.Nsp != r.Nsp || dec.UID != r.UID {
		t.Fatalf("round trip mismatch: %+v", dec)
	}
	if string(dec.Data.Packet) != "hello" {
		t.Fatalf("packet mismatch: %q", dec.Data.Packet)
	}
	if got := dec.Data.Opts.Rooms; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("rooms not normalized: %v", got)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	r := Record{Type: "bogus-but-passes-encode-checks", Nsp: "/", UID: "x"}
	// Encode only checks presence, not the enum, so it produces a
	// well-formed envelope whose type Decode's type-switch must reject.
	enc, err := Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(enc, nil); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord for unknown type, got %v", err)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	enc, err := Encode(Record{Type: TypeBroadcast, Nsp: "/", UID: "x"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	truncated := enc[:len(enc)-2]
	if _, err := Decode(truncated, nil); err == nil {
		t.Fatalf("expected malformed record error")
	}
}

func TestEncodeRejectsMissingFields(t *testing.T) {
	if _, err := Encode(Record{Type: TypeBroadcast}); err == nil {
		t.Fatalf("expected error for missing nsp/uid")
	}
}

func TestNormalizeDropsDuplicatesAndEmpty(t *testing.T) {
	o := BroadcastOpts{Rooms: []string{"a", "", "a", "b"}}
	o.Normalize()
	if len(o.Rooms) != 2 {
		t.Fatalf("want 2 unique rooms, got %v", o.Rooms)
	}
}
