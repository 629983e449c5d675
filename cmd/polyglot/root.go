package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/polyglot/core/config"
	"github.com/tailored-agentic-units/polyglot/kernel"
	"github.com/tailored-agentic-units/polyglot/observability"
	"github.com/tailored-agentic-units/polyglot/statestore"
)

const envPrefix = "POLYGLOT"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "polyglot",
		Short:         "Run documents whose cells mix languages",
		Long:          "polyglot routes cells to per-language kernels, moves variables between them, and keeps a console history per kernel.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	v := bindConfig(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(v),
		newConsoleCmd(v),
		newRunCmd(v),
		newKernelsCmd(v),
		newServeEngineCmd(),
	)
	return rootCmd
}

// bindConfig registers the config flags on flags and returns a viper
// instance reading them, falling back to POLYGLOT_* environment variables.
func bindConfig(flags *pflag.FlagSet) *viper.Viper {
	flags.String("config", "", "Path to config file (.json, .yaml, .toml)")
	flags.String("default-kernel", "", "Kernel for code submitted before any kernel is active (overrides config)")
	flags.String("observer", "", "Observers for kernel events, comma-separated: slog, zap, noop (overrides config)")
	flags.Duration("timeout", 0, "Execution timeout per submission; 0 for unlimited (overrides config)")
	flags.String("state-dir", "", "Directory for document state files (overrides config)")
	flags.String("state-db", "", "SQLite database for document state; takes precedence over --state-dir (overrides config)")
	flags.Bool("verbose", false, "Enable verbose logging to stderr")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)
	return v
}

// loadConfig builds the kernel config from the config file, then flags
// and POLYGLOT_* environment variables.
func loadConfig(v *viper.Viper) (*kernel.Config, error) {
	var cfg *kernel.Config
	if path := v.GetString("config"); path != "" {
		loaded, err := kernel.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		defaults := kernel.DefaultConfig()
		cfg = &defaults
	}

	cfg.Merge(&kernel.Config{
		DefaultKernel: v.GetString("default-kernel"),
		Observer:      v.GetString("observer"),
		Timeout:       config.Duration(v.GetDuration("timeout")),
		StateDir:      v.GetString("state-dir"),
		StateDB:       v.GetString("state-db"),
	})
	return cfg, nil
}

// setupLogging installs the process-wide loggers behind the configured
// observers. slog is always the default logger; zap is built only when
// the observer list names it.
func setupLogging(observers string, verbose bool) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	if !slices.Contains(observability.Names(observers), "zap") {
		return func() {}, nil
	}

	var (
		zl  *zap.Logger
		err error
	)
	if verbose {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create zap logger: %w", err)
	}
	undo := zap.ReplaceGlobals(zl)
	return func() {
		_ = zl.Sync()
		undo()
	}, nil
}

// openStateStore returns the document state store the config names, or
// nil when none is configured. The returned func releases it.
func openStateStore(ctx context.Context, cfg *kernel.Config) (statestore.Store, func(), error) {
	switch {
	case cfg.StateDB != "":
		store, err := statestore.OpenSQLite(ctx, cfg.StateDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case cfg.StateDir != "":
		return statestore.NewFileStore(cfg.StateDir), func() {}, nil
	}
	return nil, func() {}, nil
}

// newKernel loads the config, sets up logging and creates the kernel.
func newKernel(v *viper.Viper) (*kernel.Kernel, *kernel.Config, func(), error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, nil, nil, err
	}

	flush, err := setupLogging(cfg.Observer, v.GetBool("verbose"))
	if err != nil {
		return nil, nil, nil, err
	}

	k, err := kernel.New(cfg)
	if err != nil {
		flush()
		return nil, nil, nil, fmt.Errorf("failed to create kernel: %w", err)
	}
	return k, cfg, flush, nil
}
