package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/actprobe/internal/catalog"
	"github.com/nvandessel/actprobe/internal/dump"
	"github.com/nvandessel/actprobe/internal/reader"
	"github.com/spf13/cobra"
)

// inspection is the result of checking one dump.
type inspection struct {
	Identity string `json:"identity"`
	Path     string `json:"path"`
	Chunks   int    `json:"chunks"`
	Rows     int    `json:"rows"`
	Width    int    `json:"width"`
	Size     int64  `json:"size_bytes"`
	Problem  string `json:"problem,omitempty"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Check activation dumps against labels and ranges",
		Long: `Stream every activation dump once and check that its row count matches
the label count, that its width is consistent and that the range table
tiles the rows. Healthy dumps are recorded in the catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			noCatalog, _ := cmd.Flags().GetBool("no-catalog")

			ids, err := identities(cfg)
			if err != nil {
				return err
			}

			r := reader.New(cfg.Store(), reader.WithLogger(logger))
			total, err := r.SequenceCount()
			if err != nil {
				return err
			}
			table, err := r.Ranges()
			if err != nil {
				return err
			}
			if err := table.Validate(total); err != nil {
				return fmt.Errorf("%w: %v", reader.ErrFormat, err)
			}

			var cat *catalog.Catalog
			if !noCatalog {
				cat, err = catalog.Open(cmd.Context(), cfg.CatalogPath())
				if err != nil {
					return err
				}
				defer cat.Close()
			}

			results := make([]inspection, 0, len(ids))
			failed := 0
			for _, id := range ids {
				res := inspection{Identity: id.String(), Path: cfg.Store().DumpPath(id)}
				info, err := dump.Stat(res.Path)
				switch {
				case err != nil:
					res.Problem = err.Error()
				case info.Rows != total:
					res.Problem = fmt.Sprintf("%d rows, expected %d", info.Rows, total)
				}
				res.Chunks, res.Rows, res.Width, res.Size = info.Chunks, info.Rows, info.Width, info.Size

				if res.Problem != "" {
					failed++
					logger.Warn("dump failed inspection", "identity", res.Identity, "problem", res.Problem)
				} else if cat != nil {
					if err := cat.RecordDump(cmd.Context(), catalog.DumpInfo{
						Dir:       cfg.Store().Dir,
						Identity:  id,
						Path:      res.Path,
						Chunks:    info.Chunks,
						Rows:      info.Rows,
						Width:     info.Width,
						SizeBytes: info.Size,
					}); err != nil {
						return err
					}
				}
				results = append(results, res)
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"dir":       cfg.Store().Dir,
					"labels":    total,
					"sequences": table.Len(),
					"dumps":     results,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %d rows in %d sequences\n\n", cfg.Store().Dir, total, table.Len())
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "IDENTITY\tCHUNKS\tROWS\tWIDTH\tSTATUS")
				for _, res := range results {
					status := "ok"
					if res.Problem != "" {
						status = res.Problem
					}
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", res.Identity, res.Chunks, res.Rows, res.Width, status)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d dumps failed inspection", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().Bool("no-catalog", false, "Do not record results in the catalog")
	return cmd
}
