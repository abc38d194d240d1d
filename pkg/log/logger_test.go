package log

import (
	"encoding/json"
	"errors"
	"testing"
)

type captureOutput struct {
	entries []*Entry
	raw     [][]byte
}

func (c *captureOutput) Write(entry *Entry, formatted []byte) error {
	c.entries = append(c.entries, entry)
	c.raw = append(c.raw, append([]byte(nil), formatted...))
	return nil
}

func (c *captureOutput) Close() error { return nil }

func TestLoggerRespectsLevel(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(WarnLevel), WithFormatter(&JSONFormatter{}), WithOutput(out))

	l.Info("should be dropped")
	l.Warn("should be kept")

	if len(out.entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(out.entries))
	}
	if out.entries[0].Message != "should be kept" {
		t.Fatalf("unexpected message: %s", out.entries[0].Message)
	}
}

func TestWithAddsFields(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&JSONFormatter{}), WithOutput(out))
	l = l.With(Component("adapter"), Str("nsp", "/chat"))
	l.Info("hello", Int("n", 3))

	if len(out.entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(out.entries))
	}
	fields := out.entries[0].Fields
	if fields[ComponentKey] != "adapter" {
		t.Fatalf("missing component field: %+v", fields)
	}
	if fields["nsp"] != "/chat" {
		t.Fatalf("missing nsp field: %+v", fields)
	}
	if fields["n"] != int64(3) { // slog stores every Go int kind as int64
		t.Fatalf("missing n field: %+v", fields)
	}
}

func TestWithErrorSetsErrorField(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&JSONFormatter{}), WithOutput(out))
	l.WithError(errors.New("boom")).Error("failed")

	if len(out.entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(out.entries))
	}
	if out.entries[0].Fields["error"] != "boom" {
		t.Fatalf("missing error field: %+v", out.entries[0].Fields)
	}
}

func TestJSONFormatterProducesValidJSON(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&JSONFormatter{}), WithOutput(out))
	l.Info("hi", Str("k", "v"))

	var decoded map[string]interface{}
	if err := json.Unmarshal(out.raw[0], &decoded); err != nil {
		t.Fatalf("invalid json: %v, raw=%s", err, out.raw[0])
	}
	if decoded["msg"] != "hi" {
		t.Fatalf("unexpected msg: %v", decoded["msg"])
	}
	if decoded["k"] != "v" {
		t.Fatalf("unexpected k: %v", decoded["k"])
	}
}

func TestApplyConfigUnknownLevel(t *testing.T) {
	if _, err := ApplyConfig(Config{Level: "nonsense"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	l, err := ApplyConfig(Config{})
	if err != nil {
		t.Fatalf("apply config: %v", err)
	}
	if l.GetLevel() != InfoLevel {
		t.Fatalf("expected default info level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
		"fatal": FatalLevel,
		"":      InfoLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatalf("expected error for bogus level")
	}
}
