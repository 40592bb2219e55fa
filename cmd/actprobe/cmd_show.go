package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/actprobe/internal/activations"
	"github.com/nvandessel/actprobe/internal/reader"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <selector>",
		Short: "Print activation rows for a selector",
		Long: `Print activation rows selected by sequence position, corpus key or raw row.

Selector form: index[/pos|/key|/all][@identity]
  index is "8", "[0,4,6]" or "start:stop[:step]".

Examples:
  actprobe show 8@hx1              # rows of the 8th extracted sequence
  actprobe show '[0,4,6]/key@cx0'  # rows of corpus keys 0, 4 and 6
  actprobe show :20/all --identity hx1 --shape`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			identity, _ := cmd.Flags().GetString("identity")
			limit, _ := cmd.Flags().GetInt("limit")
			shapeOnly, _ := cmd.Flags().GetBool("shape")

			sel, err := reader.ParseSelector(args[0])
			if err != nil {
				return err
			}
			if sel.Identity == nil {
				var id activations.Identity
				if identity == "" {
					ids, err := identities(cfg)
					if err != nil {
						return err
					}
					id = ids[0]
				} else if id, err = activations.ParseIdentity(identity); err != nil {
					return err
				}
				sel = sel.On(id)
			}

			r := reader.New(cfg.Store(), reader.WithLogger(newLogger(cmd, cfg)))
			defer r.Release()
			m, err := r.Index(sel)
			if err != nil {
				return err
			}

			rows, cols := m.Dims()
			n := rows
			if limit > 0 && limit < n {
				n = limit
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				out := map[string]any{
					"selector": sel.String(),
					"rows":     rows,
					"cols":     cols,
				}
				if !shapeOnly {
					values := make([][]float64, n)
					for i := range n {
						values[i] = m.RawRowView(i)
					}
					out["values"] = values
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d x %d\n", sel, rows, cols)
			if shapeOnly {
				return nil
			}
			for i := range n {
				fmt.Fprintln(w, formatRow(m.RawRowView(i)))
			}
			if n < rows {
				fmt.Fprintf(w, "... %d more rows\n", rows-n)
			}
			return nil
		},
	}

	cmd.Flags().String("identity", "", "Activation stream when the selector names none (default: first configured)")
	cmd.Flags().Int("limit", 20, "Maximum rows to print (0 for all)")
	cmd.Flags().Bool("shape", false, "Print only the shape of the selection")
	return cmd
}

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return strings.Join(parts, " ")
}
