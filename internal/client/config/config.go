package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the terminal client.
//
// Fields:
//   - ServerAddr: host:port of the relay server; /ws and the polling API are
//     reached under it.
//   - Timeout: limit for dialing the WebSocket and for each HTTP request.
type Config struct {
	ServerAddr string
	Timeout    time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:8080"
	c.Timeout = 5 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	args := os.Args[1:]

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
