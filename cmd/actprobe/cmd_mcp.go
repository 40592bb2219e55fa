package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/actprobe/internal/logging"
	"github.com/nvandessel/actprobe/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the activation reader over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the tools
probe_identities, probe_index and probe_split for the configured
activations directory. Logs go to stderr. Each tool is throttled by
rate_limit.<tool>.per_minute and rate_limit.<tool>.burst.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			noCatalog, _ := cmd.Flags().GetBool("no-catalog")
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			outputDir, err := filepath.Abs(cfg.Split.OutputDir)
			if err != nil {
				return fmt.Errorf("resolving split.output_dir: %w", err)
			}

			ratio := cfg.Split.Ratio
			serverCfg := &mcp.Config{
				Name:       "actprobe",
				Version:    version,
				Store:      cfg.Store(),
				OutputDir:  outputDir,
				Ratio:      &ratio,
				RateLimits: cfg.RateLimit.Rules(),
				Logger:     logging.NewJSONLogger(cfg.Logging.Level, os.Stderr),
			}
			if !noCatalog {
				serverCfg.CatalogPath = cfg.CatalogPath()
			}
			if !noAudit {
				serverCfg.AuditDir = outputDir
			}

			server, err := mcp.NewServer(serverCfg)
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().Bool("no-catalog", false, "Do not record splits in the catalog")
	cmd.Flags().Bool("no-audit", false, "Do not write audit.jsonl")
	return cmd
}
