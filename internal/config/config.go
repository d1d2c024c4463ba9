// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server's runtime settings. Every field can be set
// via environment variable; command-line flags in main override the
// address and data directory for container-less runs.
type Config struct {
	Addr        string        `env:"CALSYNC_ADDR" envDefault:":8090"`
	DataDir     string        `env:"CALSYNC_DATA_DIR" envDefault:"/data"`
	FeedTimeout time.Duration `env:"CALSYNC_FEED_TIMEOUT" envDefault:"30s"`
	Version     string        `env:"VERSION" envDefault:""`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// DBPath returns the SQLite file path under the data directory.
func (c *Config) DBPath() string {
	return c.DataDir + "/calendar-sync.db"
}
