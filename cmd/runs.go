package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/airmap/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the latest run stored in PostGIS",
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

		r, err := s.LatestRun(ctx)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if r == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "no runs stored")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "latest run %s started %s, finished %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.FinishedAt.Format("2006-01-02 15:04:05"))
		printSummary(cmd.OutOrStdout(), r.Summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
