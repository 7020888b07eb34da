package main

import (
	"github.com/spf13/cobra"

	"rnadiff/internal/api"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over a read-only JSON API",
		Long: `Serve stored runs, result tables and hits:

  GET /healthz
  GET /api/runs
  GET /api/runs/{id}
  GET /api/runs/{id}/results?direction=down&limit=20
  GET /api/runs/{id}/hits`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd.Flags(),
				binding{"port", "server.port"},
				binding{"dsn", "store.dsn"},
			)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			return api.NewServer(st, logger).Start(":" + cfg.Server.Port)
		},
	}
	cmd.Flags().String("port", "", "listen port")
	cmd.Flags().String("dsn", "", "database connection string")
	return cmd
}
