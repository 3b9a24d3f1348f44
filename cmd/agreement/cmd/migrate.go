package cmd

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/masi-agreement/internal/db"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run database schema",
	}
	cmd.PersistentFlags().String("database", "", "SQLite database holding recorded runs")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDB(func(database *db.DB) error {
				if err := database.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd, database)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDB(func(database *db.DB) error {
				if err := database.MigrateDown(); err != nil {
					return err
				}
				return printVersion(cmd, database)
			})
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDB(func(database *db.DB) error {
				return printVersion(cmd, database)
			})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long:  "force clears a dirty state left by a failed migration. Fix the schema by hand first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrapf(err, "invalid version %q", args[0])
			}
			return a.withDB(func(database *db.DB) error {
				if err := database.MigrateForce(v); err != nil {
					return err
				}
				return printVersion(cmd, database)
			})
		},
	}

	cmd.AddCommand(up, down, version, force)
	return cmd
}

func printVersion(cmd *cobra.Command, database *db.DB) error {
	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", v, dirty)
	return err
}

// withDB opens the configured database without migrating it.
func (a *app) withDB(fn func(*db.DB) error) error {
	path := a.cfg.GetDatabase()
	if path == "" {
		return errors.WithHint(errors.New("no database configured"), "pass --database or set AGREEMENT_DATABASE")
	}
	database, err := db.OpenUnmigrated(path, a.log)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}
