package cmd

import (
	"fmt"

	"github.com/banshee-data/masi-agreement/internal/labelset"
	"github.com/banshee-data/masi-agreement/internal/masi"
	"github.com/spf13/cobra"
)

func newMasiCommand(a *app) *cobra.Command {
	var opts masi.Options
	var distance bool

	cmd := &cobra.Command{
		Use:   "masi <x> <y>",
		Short: "Compare two label sets with MASI",
		Example: `  agreement masi "l1, l2" "l1"
  agreement masi --separator "|" "a|b" "b|c" --distance`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parse := labelset.Parse
			if a.cfg.GetTrim() {
				parse = labelset.ParseTrimmed
			}
			sep := a.cfg.GetSeparator()
			x, y := parse(args[0], sep), parse(args[1], sep)

			if distance {
				opts.Mode = masi.ModeDistance
			}
			v, err := masi.Compare(x, y, opts)
			if err != nil {
				return err
			}

			c := masi.CountsOf(x, y)
			a.log.Debugw("masi", "x", x.String(), "y", y.String(), "relation", c.Relation().String())
			fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", v)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.String("separator", ", ", "label separator")
	fs.Bool("trim", false, "trim whitespace around labels")
	fs.BoolVar(&distance, "distance", false, "print 1 - similarity")
	fs.BoolVar(&opts.JaccardOnly, "jaccard-only", false, "drop the monotonicity factor")
	fs.BoolVar(&opts.EmptyFallback, "empty-fallback", false, "treat two empty sets as identical under --jaccard-only")
	return cmd
}
