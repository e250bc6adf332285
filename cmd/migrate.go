package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the PostGIS result schema",
	Long:  "Applies all pending SQL migrations to store.schema in lexicographic order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Schema, nil)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		if err := s.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("all migrations applied successfully", zap.String("schema", cfg.Store.Schema))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
