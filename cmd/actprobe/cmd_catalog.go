package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nvandessel/actprobe/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Query the catalog of inspected dumps and exported splits",
		Long: `The catalog is a SQLite database (catalog.path, default
<activations.dir>/catalog.db) filled by inspect and split.

Examples:
  actprobe catalog dumps
  actprobe catalog dumps --all
  actprobe catalog splits --json`,
	}

	cmd.AddCommand(
		newCatalogDumpsCmd(),
		newCatalogSplitsCmd(),
	)
	return cmd
}

func newCatalogDumpsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dumps",
		Short: "List inspected dumps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			all, _ := cmd.Flags().GetBool("all")

			cat, err := catalog.Open(cmd.Context(), cfg.CatalogPath())
			if err != nil {
				return err
			}
			defer cat.Close()

			dir := cfg.Store().Dir
			if all {
				dir = ""
			}
			dumps, err := cat.ListDumps(cmd.Context(), dir)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				items := make([]map[string]any, 0, len(dumps))
				for _, d := range dumps {
					items = append(items, map[string]any{
						"dir":        d.Dir,
						"identity":   d.Identity.String(),
						"path":       d.Path,
						"chunks":     d.Chunks,
						"rows":       d.Rows,
						"width":      d.Width,
						"size_bytes": d.SizeBytes,
						"scanned_at": d.ScannedAt,
					})
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"dumps": items, "count": len(items)})
			}

			if len(dumps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dumps recorded. Run 'actprobe inspect' first.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DIR\tIDENTITY\tROWS\tWIDTH\tSCANNED")
			for _, d := range dumps {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", d.Dir, d.Identity, d.Rows, d.Width, d.ScannedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("all", false, "List dumps of every activations directory")
	return cmd
}

func newCatalogSplitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "splits",
		Short: "List exported splits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			cat, err := catalog.Open(cmd.Context(), cfg.CatalogPath())
			if err != nil {
				return err
			}
			defer cat.Close()

			splits, err := cat.ListSplits(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				items := make([]map[string]any, 0, len(splits))
				for _, s := range splits {
					item := map[string]any{
						"id":          s.ID,
						"dir":         s.Dir,
						"identity":    s.Identity.String(),
						"subset_size": s.SubsetSize,
						"ratio":       s.Ratio,
						"train_rows":  s.TrainRows,
						"test_rows":   s.TestRows,
						"output_dir":  s.OutputDir,
						"created_at":  s.CreatedAt,
					}
					if s.Seed != nil {
						item["seed"] = *s.Seed
					}
					items = append(items, item)
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"splits": items, "count": len(items)})
			}

			if len(splits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No splits recorded. Run 'actprobe split' first.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tIDENTITY\tTRAIN\tTEST\tRATIO\tCREATED")
			for _, s := range splits {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%s\n", shortID(s.ID), s.Identity, s.TrainRows, s.TestRows, s.Ratio, s.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
