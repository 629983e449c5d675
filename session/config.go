package session

import (
	"time"

	"github.com/tailored-agentic-units/polyglot/core/config"
)

const defaultStartTimeout = config.Duration(30 * time.Second)

// Config holds registry initialization parameters.
type Config struct {
	// StartTimeout bounds how long an engine may take to start.
	StartTimeout config.Duration `json:"start_timeout,omitempty" yaml:"start_timeout,omitempty" toml:"start_timeout,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{StartTimeout: defaultStartTimeout}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.StartTimeout > 0 {
		c.StartTimeout = source.StartTimeout
	}
}
