package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/comicsync/internal/flagx"
	"github.com/dmitrijs2005/comicsync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept "3s" style
// strings or integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DatabasePath        string         `json:"database_path"`
	LogFile             string         `json:"log_file"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	PullPageSize        int            `json:"pull_page_size"`
	PushConcurrency     int            `json:"push_concurrency"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay       timex.Duration `json:"retry_max_delay"`
	RetryMaxAttempts    int            `json:"retry_max_attempts"`
	AutoApplyAfter      timex.Duration `json:"auto_apply_after"`
}

// parseJson overlays Config with the values set in the file named by -c or
// -config. Keys missing from the file keep their current value. Read and
// decode errors panic.
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

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.LogFile, jc.LogFile)
	setInt(&cfg.PullPageSize, jc.PullPageSize)
	setInt(&cfg.PushConcurrency, jc.PushConcurrency)
	setInt(&cfg.RetryMaxAttempts, jc.RetryMaxAttempts)
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RetryBaseDelay.Duration > 0 {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	}
	if jc.RetryMaxDelay.Duration > 0 {
		cfg.RetryMaxDelay = jc.RetryMaxDelay.Duration
	}
	if jc.AutoApplyAfter.Duration > 0 {
		cfg.AutoApplyAfter = jc.AutoApplyAfter.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
