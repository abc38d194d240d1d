package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.RequestsTimeoutMs != 5_000 {
		t.Fatalf("default requests timeout")
	}
	if cfg.OverlapMargin != 5 {
		t.Fatalf("default overlap margin")
	}
	if cfg.SessionPersistence != SessionPersistenceMemory {
		t.Fatalf("default session persistence")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "fanout.json")
	data := []byte(`{"requestsTimeoutMs":9000,"overlapMargin":10,"sessionPersistence":"store"}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RequestsTimeoutMs != 9000 {
		t.Fatalf("expected 9000, got %d", cfg.RequestsTimeoutMs)
	}
	if cfg.OverlapMargin != 10 {
		t.Fatalf("expected 10")
	}
	if cfg.SessionPersistence != SessionPersistenceStore {
		t.Fatalf("expected store persistence")
	}
	// Fields not present in the file keep their Default() value.
	if cfg.HeartbeatIntervalMs != 5_000 {
		t.Fatalf("expected default heartbeat interval to survive partial overlay")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("FANOUT_REQUESTS_TIMEOUT_MS", "12000")
	os.Setenv("FANOUT_OVERLAP_MARGIN", "7")
	os.Setenv("FANOUT_SESSION_PERSISTENCE", "store")
	t.Cleanup(func() {
		os.Unsetenv("FANOUT_REQUESTS_TIMEOUT_MS")
		os.Unsetenv("FANOUT_OVERLAP_MARGIN")
		os.Unsetenv("FANOUT_SESSION_PERSISTENCE")
	})
	FromEnv(&cfg)
	if cfg.RequestsTimeoutMs != 12000 {
		t.Fatalf("env override requests timeout")
	}
	if cfg.OverlapMargin != 7 {
		t.Fatalf("env override overlap margin")
	}
	if cfg.SessionPersistence != SessionPersistenceStore {
		t.Fatalf("env override session persistence")
	}
}
