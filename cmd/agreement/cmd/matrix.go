package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/masi-agreement/internal/masi"
	"github.com/banshee-data/masi-agreement/internal/weights"
	"github.com/spf13/cobra"
)

func newMatrixCommand(a *app) *cobra.Command {
	var (
		csv      csvFlags
		distance bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "matrix <ratings.csv>",
		Short: "Print the MASI weight matrix of the distinct responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.loadTable(args[0], csv.options())
			if err != nil {
				return err
			}

			opts := []weights.Option{
				weights.WithLogger(a.log),
				weights.WithMaxLabels(a.cfg.GetMaxLabels()),
			}
			if a.cfg.GetTrim() {
				opts = append(opts, weights.WithTrim())
			}
			if distance {
				opts = append(opts, weights.WithMode(masi.ModeDistance))
			}
			m, err := weights.Build(t, a.cfg.GetSeparator(), opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !asJSON {
				fmt.Fprint(out, m.String())
				return nil
			}
			rows := make([][]float64, m.Len())
			for i := range rows {
				rows[i] = make([]float64, m.Len())
				for j := range rows[i] {
					rows[i][j] = m.At(i, j)
				}
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"labels":  m.Labels,
				"mode":    m.Mode.String(),
				"weights": rows,
			})
		},
	}

	fs := cmd.Flags()
	fs.String("separator", ", ", "label separator inside a response")
	fs.Bool("trim", false, "trim whitespace around labels")
	fs.Int("max-labels", 500, "warn when the weight matrix has more labels than this")
	fs.BoolVar(&distance, "distance", false, "print MASI distances instead of similarities")
	fs.BoolVar(&asJSON, "json", false, "print JSON")
	csv.register(cmd)
	return cmd
}
