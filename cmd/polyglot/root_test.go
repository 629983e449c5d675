package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tailored-agentic-units/polyglot/core/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	v := bindConfig(pflag.NewFlagSet("test", pflag.ContinueOnError))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "Go", cfg.DefaultKernel)
	assert.Equal(t, "slog", cfg.Observer)
	assert.Zero(t, cfg.Timeout)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polyglot.yaml")
	data := `
kernels:
  - name: Go
    driver: goeval
    color: "#00ADD8"
  - name: R
    driver: process
    command: [R, --vanilla]
    color: "#DCDCDA"
default_kernel: R
observer: noop
timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := bindConfig(flags)
	require.NoError(t, flags.Parse([]string{"--config", path, "--observer", "zap"}))
	t.Setenv("POLYGLOT_TIMEOUT", "2m")

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Len(t, cfg.Kernels, 2)
	assert.Equal(t, "R", cfg.DefaultKernel, "file value without override")
	assert.Equal(t, "zap", cfg.Observer, "flag overrides file")
	assert.Equal(t, config.Duration(2*time.Minute), cfg.Timeout, "environment overrides file")
}

func TestLoadConfig_Missing(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := bindConfig(flags)
	require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.json")}))

	_, err := loadConfig(v)
	assert.Error(t, err)
}

func TestSetupLogging_ObserverList(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	flush, err := setupLogging("slog", false)
	require.NoError(t, err)
	assert.False(t, zap.L().Core().Enabled(zapcore.InfoLevel), "zap stays a no-op unless listed")
	flush()

	flush, err = setupLogging("slog,zap", false)
	require.NoError(t, err)
	assert.True(t, zap.L().Core().Enabled(zapcore.InfoLevel))
	flush()
	assert.False(t, zap.L().Core().Enabled(zapcore.InfoLevel), "flush restores the previous global")
}
