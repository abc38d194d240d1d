package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// SessionPersistence selects where session-recovery state lives.
type SessionPersistence string

const (
	// SessionPersistenceMemory keeps session records only in the owning
	// process; recovery cannot survive loss of that process.
	SessionPersistenceMemory SessionPersistence = "memory"
	// SessionPersistenceStore additionally writes a session row to the
	// shared store at disconnect time, so recovery survives the owning
	// instance crashing.
	SessionPersistenceStore SessionPersistence = "store"
)

// Config is the adapter's top-level configuration.
type Config struct {
	// UID overrides the instance id; empty means "generate one at startup".
	UID string `json:"uid,omitempty"`

	RequestsTimeoutMs          int64 `json:"requestsTimeoutMs"`
	HeartbeatIntervalMs        int64 `json:"heartbeatIntervalMs"`
	HeartbeatTimeoutMs         int64 `json:"heartbeatTimeoutMs"`
	HeartbeatMissThreshold     int   `json:"heartbeatMissThreshold"`
	AddCreatedAtField          bool  `json:"addCreatedAtField"`
	OverlapMargin              int   `json:"overlapMargin"`
	MaxDisconnectionDurationMs int64 `json:"maxDisconnectionDurationMs"`
	DupIDCacheSize             int   `json:"dupIdCacheSize"`

	SessionPersistence SessionPersistence `json:"sessionPersistence"`

	RetentionAgeMs  int64 `json:"retentionAgeMs"`
	MaxRetainedRows int   `json:"maxRetainedRows"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		RequestsTimeoutMs:          5_000,
		HeartbeatIntervalMs:        5_000,
		HeartbeatTimeoutMs:         10_000,
		HeartbeatMissThreshold:     2,
		AddCreatedAtField:          true,
		OverlapMargin:              5,
		MaxDisconnectionDurationMs: 2 * 60_000,
		DupIDCacheSize:             5_000,
		SessionPersistence:         SessionPersistenceMemory,
		RetentionAgeMs:             24 * 60 * 60_000,
		MaxRetainedRows:            1_000_000,
	}
}

func (c Config) RequestsTimeout() time.Duration {
	return time.Duration(c.RequestsTimeoutMs) * time.Millisecond
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMs) * time.Millisecond
}

func (c Config) MaxDisconnectionDuration() time.Duration {
	return time.Duration(c.MaxDisconnectionDurationMs) * time.Millisecond
}

// Load reads configuration from a JSON file layered on top of Default(). If
// path is empty, returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("config: yaml not supported yet; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
