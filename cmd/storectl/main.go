// Command storectl runs store maintenance and back-office tasks against the
// database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/storage/postgres"
)

type rootOptions struct {
	databaseURL string
	verbose     bool

	lg *zap.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Author store maintenance and back-office tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewDevelopmentConfig()
			cfg.DisableStacktrace = true
			if !opts.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
			}
			lg, err := cfg.Build()
			if err != nil {
				return errors.Wrap(err, "create logger")
			}
			opts.lg = lg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.lg != nil {
				_ = opts.lg.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or STORE_DATABASE_URL, DATABASE_URL env)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newAPIKeyCmd(opts),
		newOrderCmd(opts),
	)
	return cmd
}

// resolveDatabaseURL resolves the connection URL from the flag or the environment.
func (o *rootOptions) resolveDatabaseURL() (string, error) {
	for _, v := range []string{o.databaseURL, os.Getenv("STORE_DATABASE_URL"), os.Getenv("DATABASE_URL")} {
		if v != "" {
			return v, nil
		}
	}
	return "", errors.New("database URL is required: set --database-url, STORE_DATABASE_URL or DATABASE_URL")
}

// withPool opens a pool, runs fn and closes the pool.
func (o *rootOptions) withPool(ctx context.Context, fn func(pool *pgxpool.Pool) error) error {
	dsn, err := o.resolveDatabaseURL()
	if err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	return fn(pool)
}
