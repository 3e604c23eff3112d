package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/civic-service/internal/persistence"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations to the Postgres store",
	Long: `Apply every .sql file in the migrations directory in lexical order.

Migrations are idempotent, so running this twice is safe.

Examples:
  civicctl migrate
  civicctl migrate --dir ./migrations`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "", "Migrations directory (default: POSTGRES_MIGRATIONS_DIR)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required for migrate")
	}
	dir := migrationsDir
	if dir == "" {
		dir = cfg.Postgres.MigrationsDir
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if err := persistence.RunMigrations(ctx, pg.PoolHandle(), dir, logger); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations in %s applied\n", dir)
	return nil
}
