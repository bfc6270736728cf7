package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/quillnote/core/internal/flagx"
	"github.com/quillnote/core/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	APIEndpoint    string         `json:"api_endpoint"`
	DatabasePath   string         `json:"database_path"`
	CipherBackend  string         `json:"cipher_backend"`
	PollInterval   timex.Duration `json:"poll_interval"`
	NetTimeout     timex.Duration `json:"net_timeout"`
	BackoffBase    timex.Duration `json:"backoff_base"`
	BackoffCeiling timex.Duration `json:"backoff_ceiling"`
	MaxRetries     uint64         `json:"max_retries"`
	PushBatchSize  int            `json:"push_batch_size"`
	InviteTTL      timex.Duration `json:"invite_ttl"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from the -c or -config command-line flags via
// flagx.JsonConfigFlags(); when empty, no JSON is loaded. Zero-valued fields
// in the file leave the corresponding Config fields untouched. Read or
// unmarshal errors panic; configuration is resolved once at startup and a
// broken file should stop the process.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIEndpoint != "" {
		cfg.APIEndpoint = jc.APIEndpoint
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.CipherBackend != "" {
		cfg.CipherBackend = jc.CipherBackend
	}
	if jc.PollInterval.Duration != 0 {
		cfg.PollInterval = time.Duration(jc.PollInterval.Duration)
	}
	if jc.NetTimeout.Duration != 0 {
		cfg.NetTimeout = time.Duration(jc.NetTimeout.Duration)
	}
	if jc.BackoffBase.Duration != 0 {
		cfg.BackoffBase = time.Duration(jc.BackoffBase.Duration)
	}
	if jc.BackoffCeiling.Duration != 0 {
		cfg.BackoffCeiling = time.Duration(jc.BackoffCeiling.Duration)
	}
	if jc.MaxRetries != 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
	if jc.PushBatchSize != 0 {
		cfg.PushBatchSize = jc.PushBatchSize
	}
	if jc.InviteTTL.Duration != 0 {
		cfg.InviteTTL = time.Duration(jc.InviteTTL.Duration)
	}
}
