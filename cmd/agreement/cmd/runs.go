package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/masi-agreement/internal/db"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newRunsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs recorded in the database",
	}
	cmd.PersistentFlags().String("database", "", "SQLite database holding recorded runs")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store *db.RunStore) error {
				runs, err := store.List(ctxOf(cmd), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tCREATED\tINPUT\tTRIALS\tALPHA\tP(PERM)\tKAPPA\tP(PERM)")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%.4f\t%.4g\t%.4f\t%.4g\n",
						r.ID, time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339), r.Input,
						r.Completed, r.Trials,
						r.Alpha.Value, r.Alpha.PermPValue, r.Kappa.Value, r.Kappa.PermPValue)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 = all)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the stored summary of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *db.RunStore) error {
				run, err := store.Get(ctxOf(cmd), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if run.SummaryJSON != "" {
					_, err = fmt.Fprintln(out, run.SummaryJSON)
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its null samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *db.RunStore) error {
				if err := store.Delete(ctxOf(cmd), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

// withStore opens the configured database for the duration of fn.
func (a *app) withStore(fn func(*db.RunStore) error) error {
	path := a.cfg.GetDatabase()
	if path == "" {
		return errors.WithHint(errors.New("no database configured"), "pass --database or set AGREEMENT_DATABASE")
	}
	database, err := db.Open(path, a.log)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(db.NewRunStore(database))
}
