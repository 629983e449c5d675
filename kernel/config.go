package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/core/config"
	"github.com/tailored-agentic-units/polyglot/session"
)

const (
	defaultKernel       = "Go"
	defaultObserver     = "slog"
	defaultStatusBuffer = 64
)

// Config holds initialization parameters for the kernel and the session
// registries of its documents.
type Config struct {
	// Kernels is the catalog of kernels documents may start.
	Kernels []catalog.Spec `json:"kernels,omitempty" yaml:"kernels,omitempty" toml:"kernels,omitempty"`
	// DefaultKernel runs code submitted before any kernel is active.
	DefaultKernel string `json:"default_kernel,omitempty" yaml:"default_kernel,omitempty" toml:"default_kernel,omitempty"`
	// Timeout bounds each submission's execution. Zero disables it.
	Timeout config.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	// Observer names one or more registered observability.Observers,
	// comma-separated, e.g. "slog,zap".
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty" toml:"observer,omitempty"`
	// StatusBuffer is the default channel size for status subscribers.
	StatusBuffer int `json:"status_buffer,omitempty" yaml:"status_buffer,omitempty" toml:"status_buffer,omitempty"`
	// StateDir is where hosts keep document state files. Empty disables it.
	StateDir string `json:"state_dir,omitempty" yaml:"state_dir,omitempty" toml:"state_dir,omitempty"`
	// StateDB is a SQLite database for document state. It takes
	// precedence over StateDir.
	StateDB string         `json:"state_db,omitempty" yaml:"state_db,omitempty" toml:"state_db,omitempty"`
	Session session.Config `json:"session" yaml:"session" toml:"session"`
}

// DefaultKernels returns the built-in catalog: the in-process Go
// interpreter.
func DefaultKernels() []catalog.Spec {
	return []catalog.Spec{{
		Name:     defaultKernel,
		Kernel:   "goeval",
		Language: "Go",
		Color:    "#00ADD8",
		Driver:   "goeval",
		Aliases:  []string{"golang"},
	}}
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Kernels:       DefaultKernels(),
		DefaultKernel: defaultKernel,
		Observer:      defaultObserver,
		StatusBuffer:  defaultStatusBuffer,
		Session:       session.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c. A non-empty kernel
// list replaces the current one.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)

	if len(source.Kernels) > 0 {
		c.Kernels = source.Kernels
	}
	if source.DefaultKernel != "" {
		c.DefaultKernel = source.DefaultKernel
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.StatusBuffer > 0 {
		c.StatusBuffer = source.StatusBuffer
	}
	if source.StateDir != "" {
		c.StateDir = source.StateDir
	}
	if source.StateDB != "" {
		c.StateDB = source.StateDB
	}
}

// LoadConfig reads a config file, merges it with defaults, and returns
// the resulting Config. The format follows the extension: .json, .yaml,
// .yml or .toml.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := decodeConfig(filepath.Ext(filename), data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

func decodeConfig(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".json":
		return json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	}
	return fmt.Errorf("%w: %q", ErrConfigFormat, ext)
}
