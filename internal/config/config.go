// Package config handles runtime configuration for the engine: defaults,
// JSON file overlay, environment variables, and command-line flags, applied
// in that order with later sources taking precedence.
package config

import "time"

// Config holds runtime settings for the notes engine.
//
// Fields:
//   - APIEndpoint: base URL of the sync service.
//   - DatabasePath: SQLite file holding the encrypted local model.
//   - CipherBackend: content cipher, "aesgcm" or "xchacha20poly1305".
//   - PollInterval: how often the sync engine polls for remote changes.
//   - NetTimeout: per-request network deadline.
//   - BackoffBase / BackoffCeiling: retry schedule bounds for failed cycles.
//   - MaxRetries: failed cycles tolerated before sync halts.
//   - PushBatchSize: queued local changes sent per push.
//   - InviteTTL: lifetime of a sharing invite.
type Config struct {
	APIEndpoint    string
	DatabasePath   string
	CipherBackend  string
	PollInterval   time.Duration
	NetTimeout     time.Duration
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	MaxRetries     uint64
	PushBatchSize  int
	InviteTTL      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIEndpoint = "http://127.0.0.1:8080"
	c.DatabasePath = "quillnote.db"
	c.CipherBackend = "aesgcm"
	c.PollInterval = 30 * time.Second
	c.NetTimeout = 10 * time.Second
	c.BackoffBase = time.Second
	c.BackoffCeiling = 2 * time.Minute
	c.MaxRetries = 10
	c.PushBatchSize = 50
	c.InviteTTL = 14 * 24 * time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), environment variables, and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
