package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/airmap/internal/loader"
	"github.com/sells-group/airmap/internal/uba"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the station table from the UBA air data API",
	Long: "Fetches the stations of uba.network and their annual means of run.component for every " +
		"run year and writes them as a combined station CSV to input.stations.path (EPSG:4326).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		years := fetchYears()
		client := uba.New(cfg.UBA, nil)
		table, err := client.FetchStationTable(ctx, cfg.UBA.Network, cfg.Run.Component, years)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		path := cfg.Input.Stations.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return eris.Wrap(err, "fetch: create directory")
		}
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "fetch: create station file")
		}
		defer f.Close() //nolint:errcheck

		if err := loader.WriteStationTable(f, table); err != nil {
			return eris.Wrap(err, "fetch: write station table")
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "fetch: close station file")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d stations, %d readings to %s\n",
			len(table.Stations), len(table.Readings), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

// fetchYears returns run.years, or the first_year..last_year range.
func fetchYears() []int {
	if len(cfg.Run.Years) > 0 {
		return cfg.Run.Years
	}
	last := cfg.Run.LastYear
	if last < cfg.Run.FirstYear {
		last = cfg.Run.FirstYear
	}
	var years []int
	for y := cfg.Run.FirstYear; y <= last; y++ {
		years = append(years, y)
	}
	return years
}
