package memstore

import (
	"context"
	"testing"
	"time"
)

func TestInsertAndRead(t *testing.T) {
	s := New()
	ctx := context.Background()
	off1, err := s.Insert(ctx, []byte("a"), time.Now())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	off2, err := s.Insert(ctx, []byte("b"), time.Now())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if s.Compare(off1, off2) >= 0 {
		t.Fatalf("expected off1 < off2")
	}
	rows, err := s.Read(ctx, off1, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || string(rows[0].Body) != "b" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestTailWakesOnInsert(t *testing.T) {
	s := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cur, err := s.Tail(ctx, nil)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = s.Insert(context.Background(), []byte("hi"), time.Now())
	}()
	raw, err := cur.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(raw.Body) != "hi" {
		t.Fatalf("unexpected body: %q", raw.Body)
	}
}
