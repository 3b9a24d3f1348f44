package cmd

import (
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"text/tabwriter"

	"github.com/banshee-data/masi-agreement/internal/db"
	"github.com/banshee-data/masi-agreement/internal/experiment"
	"github.com/banshee-data/masi-agreement/internal/ratings"
	"github.com/banshee-data/masi-agreement/internal/report"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// csvFlags are the ratings parsing flags shared by run and matrix.
type csvFlags struct {
	noItemColumn bool
	long         bool
	missing      []string
}

func (f *csvFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noItemColumn, "no-item-column", false, "first CSV column is a rater, not the item ID")
	cmd.Flags().BoolVar(&f.long, "long", false, "CSV has item, rater and label columns, one rating per row")
	cmd.Flags().StringSliceVar(&f.missing, "missing", ratings.DefaultMissingTokens, "cell values read as missing")
}

func (f *csvFlags) options() ratings.CSVOptions {
	return ratings.CSVOptions{ItemColumn: !f.noItemColumn, Long: f.long, MissingTokens: f.missing}
}

func newRunCommand(a *app) *cobra.Command {
	var csv csvFlags
	var noReport bool

	cmd := &cobra.Command{
		Use:   "run <ratings.csv>",
		Short: "Compute MASI-weighted alpha and kappa with permutation significance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], csv.options(), !noReport)
		},
	}

	fs := cmd.Flags()
	fs.String("separator", ", ", "label separator inside a response")
	fs.Bool("trim", false, "trim whitespace around labels")
	fs.Int("max-labels", 500, "warn when the weight matrix has more labels than this")
	fs.IntP("trials", "n", experiment.DefaultTrials, "number of permutation trials")
	fs.Float64("confidence-level", experiment.DefaultConfidence, "confidence level of the intervals")
	fs.IntP("workers", "j", 0, "concurrent trials (0 = one per CPU)")
	fs.Uint64("seed", 0, "random seed (default: random, printed in the summary)")
	fs.Duration("budget", 0, "wall time budget for the trials (0 = unbounded)")
	fs.StringP("output-dir", "o", "agreement-report", "report directory")
	fs.Int("bins", report.DefaultBins, "histogram bins")
	fs.String("database", "", "SQLite database to record the run in")
	fs.BoolVar(&noReport, "no-report", false, "skip writing report files")
	csv.register(cmd)
	return cmd
}

func (a *app) run(cmd *cobra.Command, input string, opts ratings.CSVOptions, writeReport bool) error {
	ctx := ctxOf(cmd)
	t, err := a.loadTable(input, opts)
	if err != nil {
		return err
	}

	sum := ratings.Summarise(t)
	a.log.Infow("ratings loaded",
		"items", sum.TotalItems,
		"raters", t.Cols(),
		"multi_rated", sum.MultiRatedCount,
		"missing", sum.MissingCount,
		"exact_agreement", sum.AgreementRate)

	seed, ok := a.cfg.GetSeed()
	if !ok {
		seed = rand.Uint64()
		a.log.Infow("no seed configured; drew one", "seed", seed)
	}
	runCfg := a.cfg.RunConfig(seed)

	runner := experiment.NewRunner(a.log)
	res, err := runner.Run(ctx, t, runCfg)
	if err != nil {
		return err
	}

	s := report.Summarize(res)
	s.RunID = uuid.NewString()
	s.Input = input

	if writeReport {
		w := report.NewWriter(a.cfg.GetOutputDir(), a.log)
		w.FS = a.fs
		w.Bins = a.cfg.GetBins()
		if _, err := w.Write(s, res); err != nil {
			return errors.Wrap(err, "write report")
		}
	}

	if path := a.cfg.GetDatabase(); path != "" {
		if err := a.store(cmd, path, s, runCfg, res); err != nil {
			return err
		}
	}

	printSummary(cmd.OutOrStdout(), s)
	if writeReport {
		fmt.Fprintf(cmd.OutOrStdout(), "\nreport: %s\n", filepath.Join(a.cfg.GetOutputDir(), report.SummaryFile))
	}
	return nil
}

func (a *app) store(cmd *cobra.Command, path string, s report.Summary, cfg experiment.Config, res *experiment.Result) error {
	database, err := db.Open(path, a.log)
	if err != nil {
		return err
	}
	defer database.Close()

	run, err := db.NewRun(s, cfg, s.Input)
	if err != nil {
		return err
	}
	if err := db.NewRunStore(database).Insert(ctxOf(cmd), run, res.AlphaNull, res.KappaNull); err != nil {
		return errors.Wrap(err, "store run")
	}
	a.log.Infow("run stored", "run_id", run.ID, "database", path)
	return nil
}

func printSummary(out io.Writer, s report.Summary) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "trials\t%d/%d completed (seed %d)\n", s.Completed, s.Trials, s.Seed)
	if s.Partial {
		fmt.Fprintf(tw, "partial\t%d trial failures, %d skipped\n", len(s.Failures), s.Trials-s.Completed)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "coefficient\tvalue\tstd err\tinterval\tp (t)\tp (perm)")
	for _, c := range []report.CoefficientReport{s.Alpha, s.Kappa} {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t[%.4f, %.4f]\t%.4g\t%.4g\n",
			c.Coefficient, c.Value, c.StdErr, c.Lower, c.Upper, c.PValue, c.Permutation.PValue)
	}
	tw.Flush()
}
