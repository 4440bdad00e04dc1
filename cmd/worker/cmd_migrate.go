package main

import (
	"context"
	"fmt"
	"time"

	pg "uvian-worker/internal/infra/db/postgres"
	"uvian-worker/internal/infra/db/sqlite"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema for the configured driver",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		switch cfg.Database.Driver {
		case "postgres":
			pool, err := pg.NewPgxPool(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()
			if err := pg.Migrate(ctx, pool); err != nil {
				return err
			}
		case "sqlite":
			// Opening the store applies the schema.
			s, err := sqlite.New(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("sqlite: %w", err)
			}
			defer s.Close()
		default:
			return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("schema applied")
		return nil
	},
}
