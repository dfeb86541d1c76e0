package config

import "time"

// Config holds runtime settings for the comicsync REPL client.
type Config struct {
	ServerEndpointAddr  string
	DatabasePath        string
	LogFile             string
	OnlineCheckInterval time.Duration

	PullPageSize    int
	PushConcurrency int

	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int

	// AutoApplyAfter is how long a non-interactive list refresh that
	// changed the visible rows waits for the user before it is applied.
	AutoApplyAfter time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "comicsync.db"
	c.LogFile = "comicsync.log"
	c.OnlineCheckInterval = 3 * time.Second
	c.PullPageSize = 100
	c.PushConcurrency = 4
	c.RetryBaseDelay = 2 * time.Second
	c.RetryMaxDelay = time.Minute
	c.RetryMaxAttempts = 5
	c.AutoApplyAfter = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
