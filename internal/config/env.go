package config

import (
	"os"
	"time"
)

// parseEnv overlays Config with values from environment variables. Duration
// variables use time.ParseDuration syntax ("30s", "2m"); malformed values are
// ignored in favor of the current setting.
//
// Supported variables:
//
//	QUILL_API_ENDPOINT    base URL of the sync service
//	QUILL_DATABASE_PATH   SQLite file path
//	QUILL_CIPHER          content cipher backend
//	QUILL_POLL_INTERVAL   sync poll interval
//	QUILL_NET_TIMEOUT     per-request network deadline
func parseEnv(cfg *Config) {
	if v, ok := os.LookupEnv("QUILL_API_ENDPOINT"); ok && v != "" {
		cfg.APIEndpoint = v
	}
	if v, ok := os.LookupEnv("QUILL_DATABASE_PATH"); ok && v != "" {
		cfg.DatabasePath = v
	}
	if v, ok := os.LookupEnv("QUILL_CIPHER"); ok && v != "" {
		cfg.CipherBackend = v
	}
	if v, ok := os.LookupEnv("QUILL_POLL_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v, ok := os.LookupEnv("QUILL_NET_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NetTimeout = d
		}
	}
}
