package config

import (
	"os"
	"strconv"
)

// FromEnv overlays FANOUT_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FANOUT_UID"); v != "" {
		cfg.UID = v
	}
	if v := os.Getenv("FANOUT_REQUESTS_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RequestsTimeoutMs = n
		}
	}
	if v := os.Getenv("FANOUT_HEARTBEAT_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HeartbeatIntervalMs = n
		}
	}
	if v := os.Getenv("FANOUT_HEARTBEAT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HeartbeatTimeoutMs = n
		}
	}
	if v := os.Getenv("FANOUT_HEARTBEAT_MISS_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatMissThreshold = n
		}
	}
	if v := os.Getenv("FANOUT_ADD_CREATED_AT_FIELD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AddCreatedAtField = b
		}
	}
	if v := os.Getenv("FANOUT_OVERLAP_MARGIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OverlapMargin = n
		}
	}
	if v := os.Getenv("FANOUT_MAX_DISCONNECTION_DURATION_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxDisconnectionDurationMs = n
		}
	}
	if v := os.Getenv("FANOUT_DUP_ID_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DupIDCacheSize = n
		}
	}
	if v := os.Getenv("FANOUT_SESSION_PERSISTENCE"); v != "" {
		cfg.SessionPersistence = SessionPersistence(v)
	}
	if v := os.Getenv("FANOUT_RETENTION_AGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RetentionAgeMs = n
		}
	}
	if v := os.Getenv("FANOUT_MAX_RETAINED_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetainedRows = n
		}
	}
}
