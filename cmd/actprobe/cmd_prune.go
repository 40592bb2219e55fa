package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nvandessel/actprobe/internal/catalog"
	"github.com/nvandessel/actprobe/internal/config"
	"github.com/nvandessel/actprobe/internal/retention"
	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old exported splits",
		Long: `Delete split directories under split.output_dir that no retention rule
keeps, and drop their catalog records. A split is kept if any of
retention.max_count (newest per stream), retention.max_age or
retention.max_total_size keeps it.

Examples:
  actprobe prune --dry-run
  actprobe prune --set retention.max_count=2
  actprobe prune --set retention.max_age=14d --set retention.max_count=0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Require("split.output_dir"); err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			noCatalog, _ := cmd.Flags().GetBool("no-catalog")

			policy, err := buildRetentionPolicy(&cfg.Retention)
			if err != nil {
				return err
			}

			removed, err := retention.Apply(cfg.Split.OutputDir, policy, dryRun)
			if err != nil {
				return err
			}

			if !dryRun && !noCatalog && len(removed) > 0 {
				cat, err := catalog.Open(cmd.Context(), cfg.CatalogPath())
				if err != nil {
					return err
				}
				defer cat.Close()

				ids := make([]string, 0, len(removed))
				for _, s := range removed {
					ids = append(ids, s.ID)
				}
				n, err := cat.DeleteSplits(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				logger.Debug("catalog records removed", "count", n)
			}
			logger.Info("prune finished", "removed", len(removed), "dry_run", dryRun)

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				items := make([]map[string]any, 0, len(removed))
				for _, s := range removed {
					items = append(items, map[string]any{
						"id":         s.ID,
						"identity":   s.Identity,
						"dir":        s.Dir,
						"size_bytes": s.Size,
						"created_at": s.CreatedAt,
					})
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"removed": items,
					"count":   len(items),
					"dry_run": dryRun,
				})
			}

			if len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
				return nil
			}
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d split(s):\n", verb, len(removed))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tIDENTITY\tSIZE\tCREATED")
			for _, s := range removed {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", shortID(s.ID), s.Identity, s.Size, s.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Bool("dry-run", false, "List the splits that would be removed without removing them")
	cmd.Flags().Bool("no-catalog", false, "Leave catalog records untouched")
	return cmd
}

// buildRetentionPolicy constructs a retention policy from config. It is an
// error to configure no rule at all.
func buildRetentionPolicy(cfg *config.RetentionConfig) (retention.Policy, error) {
	var policies []retention.Policy

	if cfg.MaxCount > 0 {
		policies = append(policies, &retention.CountPolicy{MaxCount: cfg.MaxCount})
	}

	if cfg.MaxAge != "" {
		d, err := retention.ParseDuration(cfg.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("retention.max_age: %w", err)
		}
		policies = append(policies, &retention.AgePolicy{MaxAge: d})
	}

	if cfg.MaxTotalSize != "" {
		s, err := retention.ParseSize(cfg.MaxTotalSize)
		if err != nil {
			return nil, fmt.Errorf("retention.max_total_size: %w", err)
		}
		policies = append(policies, &retention.SizePolicy{MaxTotalBytes: s})
	}

	switch len(policies) {
	case 0:
		return nil, fmt.Errorf("no retention rule configured; set retention.max_count, retention.max_age or retention.max_total_size")
	case 1:
		return policies[0], nil
	default:
		return &retention.CompositePolicy{Policies: policies}, nil
	}
}
