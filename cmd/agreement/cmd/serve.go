package cmd

import (
	"github.com/banshee-data/masi-agreement/internal/api"
	"github.com/banshee-data/masi-agreement/internal/db"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs and their null distributions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store *db.RunStore) error {
				return api.NewServer(store, a.log).ListenAndServe(ctxOf(cmd), addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "listen", ":8090", "HTTP listen address")
	cmd.Flags().String("database", "", "SQLite database holding recorded runs")
	return cmd
}
