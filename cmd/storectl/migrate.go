package main

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/storage/postgres"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				if err := postgres.RunMigrations(cmd.Context(), pool); err != nil {
					return err
				}
				return logVersion(opts.lg, pool)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return errors.New("--steps must be at least 1")
			}
			return opts.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				if err := postgres.MigrateDown(pool, steps); err != nil {
					return err
				}
				return logVersion(opts.lg, pool)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				return logVersion(opts.lg, pool)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func logVersion(lg *zap.Logger, pool *pgxpool.Pool) error {
	v, dirty, err := postgres.MigrationVersion(pool)
	if err != nil {
		return errors.Wrap(err, "read schema version")
	}
	lg.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	return nil
}
