package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rnadiff/adapters/store"
	"rnadiff/internal/errors"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|status]",
		Short: "Apply or list run database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd.Flags(),
				binding{"driver", "store.driver"},
				binding{"dsn", "store.dsn"},
			)
			if err != nil {
				return err
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN, logger)
			if err != nil {
				return errors.DatabaseError("failed to open store", err)
			}
			defer st.Close()

			switch action {
			case "up":
				if err := st.Migrate(cmd.Context()); err != nil {
					return errors.DatabaseError("migration failed", err)
				}
				version, err := st.Migrator().Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", version)
				return nil
			case "status":
				statuses, err := st.Migrator().Status(cmd.Context())
				if err != nil {
					return errors.DatabaseError("failed to read migration status", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "version\tname\tapplied")
				for _, s := range statuses {
					fmt.Fprintf(tw, "%s\t%s\t%t\n", s.Version, s.Name, s.Applied)
				}
				return tw.Flush()
			}
			return errors.New(errors.CodeInputValidation, fmt.Sprintf("unknown migrate action %q", action))
		},
	}
	cmd.Flags().String("driver", "", "sqlite3 or postgres")
	cmd.Flags().String("dsn", "", "database connection string")
	return cmd
}
