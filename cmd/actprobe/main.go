package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nvandessel/actprobe/internal/activations"
	"github.com/nvandessel/actprobe/internal/config"
	"github.com/nvandessel/actprobe/internal/logging"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "actprobe",
		Short: "Index extracted activations and build probing datasets",
		Long: `actprobe reads activation dumps written by the extraction step and
serves them by sequence position, corpus key or raw row.

It derives random train/test splits for probing classifiers, exports
them as Arrow files and keeps a catalog of dumps and splits.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringArray("set", nil, "Override a config value (group.key=value), repeatable")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newInspectCmd(),
		newShowCmd(),
		newSplitCmd(),
		newCatalogCmd(),
		newPruneCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadConfig builds the effective configuration from the global flags.
func loadConfig(cmd *cobra.Command) (*config.ProbeConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	sets, _ := cmd.Flags().GetStringArray("set")

	cfg, err := config.Load(path, sets)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the stderr logger for cfg, in JSON when --json is set.
func newLogger(cmd *cobra.Command, cfg *config.ProbeConfig) *slog.Logger {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return logging.NewJSONLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	}
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// identities returns the configured activation streams, or every stream in
// the activations directory when none are configured.
func identities(cfg *config.ProbeConfig) ([]activations.Identity, error) {
	ids, err := cfg.Identities()
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}
	ids, err = cfg.Store().Identities()
	if err != nil {
		return nil, fmt.Errorf("failed to list activation streams: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no activation streams in %s", cfg.Activations.Dir)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
