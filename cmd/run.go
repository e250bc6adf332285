package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/export"
	"github.com/sells-group/airmap/internal/loader"
	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/pipeline"
	"github.com/sells-group/airmap/internal/store"
)

var (
	runOutputDir string
	runMigrate   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the classification pipeline and write its outputs",
	Long: "Loads districts, stations and the indicator table, aggregates and classifies every " +
		"configured year, computes deltas and writes CSV/GeoJSON/GeoPackage outputs plus summary.yaml. " +
		"With store.driver=postgres the run is also saved to PostGIS.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runOutputDir != "" {
			cfg.Output.Dir = runOutputDir
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		prepared, err := prepareRun(ctx)
		if err != nil {
			return err
		}

		res, err := prepared.orchestrator.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		w, err := export.New(export.Options{
			Dir:     cfg.Output.Dir,
			Formats: cfg.Output.Formats,
			Subsets: cfg.Output.Subsets,
			EPSG:    prepared.config.EPSG,
		}, prepared.inputs.Districts)
		if err != nil {
			return err
		}
		paths, err := w.WriteAll(ctx, res)
		if err != nil {
			return eris.Wrap(err, "run: write outputs")
		}

		if err := saveRun(ctx, res, prepared.inputs.Districts); err != nil {
			return err
		}

		printSummary(cmd.OutOrStdout(), res.Summary)
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files to %s\n", len(paths), cfg.Output.Dir)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "output directory (overrides output.dir)")
	runCmd.Flags().BoolVar(&runMigrate, "migrate", false, "apply store migrations before saving")
	rootCmd.AddCommand(runCmd)
}

// preparedRun is a validated run ready to execute.
type preparedRun struct {
	config       pipeline.RunConfig
	inputs       pipeline.Inputs
	orchestrator *pipeline.Orchestrator
}

// prepareRun converts the configuration, loads the inputs and builds the
// orchestrator. Every error is fatal for the run.
func prepareRun(ctx context.Context) (*preparedRun, error) {
	rc, err := pipeline.RunConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	in, err := loader.LoadInputs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	o, err := pipeline.New(rc, in)
	if err != nil {
		return nil, err
	}
	return &preparedRun{config: o.Config(), inputs: in, orchestrator: o}, nil
}

func saveRun(ctx context.Context, res *pipeline.Result, districts []model.District) error {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return eris.Wrap(err, "run: open store")
	}
	if st == nil {
		return nil
	}
	defer st.Close() //nolint:errcheck

	if runMigrate {
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "run: migrate store")
		}
	}
	if err := st.SaveRun(ctx, res, districts); err != nil {
		return eris.Wrap(err, "run: save")
	}
	zap.L().Info("run saved to store", zap.String("run_id", res.RunID))
	return nil
}

func printSummary(w io.Writer, s model.RunSummary) {
	fmt.Fprintf(w, "run %s: %d districts, years %v (breaks %s, delta %s)\n",
		s.RunID, s.Districts, s.Years, s.BreaksPolicy, s.DeltaPolicy)
	fmt.Fprintf(w, "  observed %d, imputed %d, coverage gaps %d, missing indicator %d\n",
		s.Observed, s.Imputed, s.CoverageGaps, s.MissingIndicator)
	fmt.Fprintf(w, "  undefined classes %d, degenerate breaks %d, zero divisions %d, undefined deltas %d, failed years %d\n",
		s.UndefinedClasses, s.DegenerateBreaks, s.ZeroDivisions, s.UndefinedDeltas, s.FailedYears)
	for _, warn := range s.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}
