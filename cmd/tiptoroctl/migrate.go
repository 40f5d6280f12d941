package main

import (
	"context"
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tiptoro/tiptoro-api/internal/config"
	"github.com/tiptoro/tiptoro-api/internal/platform/sqldb"
)

type migrateOptions struct {
	driver string
	url    string
}

// database returns the connection settings from the flags, falling back to
// the application configuration when no URL was given.
func (o *migrateOptions) database() (config.DatabaseConfig, error) {
	if o.url != "" {
		return config.DatabaseConfig{Driver: o.driver, URL: o.url}, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return config.DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

func (o *migrateOptions) open(ctx context.Context) (*sql.DB, string, error) {
	dbCfg, err := o.database()
	if err != nil {
		return nil, "", err
	}
	db, err := sqldb.Open(ctx, dbCfg)
	if err != nil {
		return nil, "", err
	}
	return db, dbCfg.Driver, nil
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", sqldb.DriverSQLite, "Database driver (sqlite or postgres)")
	cmd.PersistentFlags().StringVar(&opts.url, "url", "", "Database URL; read from configuration when empty")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, driver, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			if err := sqldb.Migrate(ctx, db, driver, root.logger(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show which migrations are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, driver, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			states, err := sqldb.MigrationStatus(ctx, db, driver)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATE\tFILE")
			for _, s := range states {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, state, s.Path)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(up, status)
	return cmd
}
