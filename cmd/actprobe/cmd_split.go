package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/actprobe/internal/catalog"
	"github.com/nvandessel/actprobe/internal/export"
	"github.com/nvandessel/actprobe/internal/logging"
	"github.com/nvandessel/actprobe/internal/reader"
	"github.com/spf13/cobra"
)

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Create and export train/test splits",
		Long: `For each configured activation stream, draw a random train/test split,
write it under split.output_dir and record it in the catalog.

split.seed makes the draw reproducible; without it every run differs.

Examples:
  actprobe split --set activations.names=[hx1,cx1]
  actprobe split --set split.subset_size=1000 --set split.seed=7`,
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
			noCatalog, _ := cmd.Flags().GetBool("no-catalog")

			ids, err := identities(cfg)
			if err != nil {
				return err
			}

			opts := []reader.Option{reader.WithLogger(logger)}
			var seed *uint64
			if cfg.Split.Seed != 0 {
				s := cfg.Split.Seed
				seed = &s
				opts = append(opts, reader.WithSeed(s))
			}
			r := reader.New(cfg.Store(), opts...)
			defer r.Release()

			var cat *catalog.Catalog
			if !noCatalog {
				cat, err = catalog.Open(cmd.Context(), cfg.CatalogPath())
				if err != nil {
					return err
				}
				defer cat.Close()
			}

			events := logging.NewEventLog(cfg.Split.OutputDir, cfg.Logging.Level)
			defer events.Close()

			manifests := make([]export.Manifest, 0, len(ids))
			for _, id := range ids {
				split, err := r.CreateDataSplit(id, cfg.Split.SubsetSize, cfg.Split.Ratio)
				if err != nil {
					return fmt.Errorf("splitting %s: %w", id, err)
				}

				m, err := export.WriteSplit(cfg.Split.OutputDir, split, export.Options{
					Source:     cfg.Store().Dir,
					SubsetSize: cfg.Split.SubsetSize,
					Ratio:      cfg.Split.Ratio,
					Seed:       seed,
				})
				if err != nil {
					return fmt.Errorf("exporting %s: %w", id, err)
				}

				if cat != nil {
					if err := cat.RecordSplit(cmd.Context(), catalog.SplitRecord{
						ID:         m.ID,
						Dir:        cfg.Store().Dir,
						Identity:   id,
						SubsetSize: cfg.Split.SubsetSize,
						Ratio:      cfg.Split.Ratio,
						TrainRows:  m.TrainRows,
						TestRows:   m.TestRows,
						Seed:       seed,
						OutputDir:  m.Dir,
						CreatedAt:  m.CreatedAt,
					}); err != nil {
						return err
					}
				}

				events.Record(logging.Event{
					Kind:     "split",
					Identity: id.String(),
					Fields: map[string]any{
						"id":    m.ID,
						"dir":   m.Dir,
						"train": m.TrainRows,
						"test":  m.TestRows,
						"width": m.Width,
					},
				})
				logger.Info("split exported", "identity", id.String(), "dir", m.Dir)
				manifests = append(manifests, m)
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), manifests)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTITY\tTRAIN\tTEST\tWIDTH\tDIR")
			for _, m := range manifests {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", m.Identity, m.TrainRows, m.TestRows, m.Width, m.Dir)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Bool("no-catalog", false, "Do not record splits in the catalog")
	return cmd
}
