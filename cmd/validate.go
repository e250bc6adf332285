package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the inputs and check the configuration without running",
	Long: "Loads districts, stations and indicator, checks the CRS and that indicator codes join " +
		"the district codes. Exits non-zero on any configuration error.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("validate"); err != nil {
			return err
		}
		prepared, err := prepareRun(cmd.Context())
		if err != nil {
			return err
		}

		rc := prepared.config
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ok: %d districts, %d stations, %d indicator rows\n",
			len(prepared.inputs.Districts), len(prepared.inputs.Stations.Stations), len(prepared.inputs.Indicator))
		fmt.Fprintf(out, "years %v (first %d, last %d), EPSG:%d, IDW k=%d radius=%g\n",
			rc.Years, rc.FirstYear, rc.LastYear, rc.EPSG, rc.IDW.K, rc.IDW.Radius)
		for _, y := range rc.Years {
			if n := len(prepared.inputs.Stations.Series(y, rc.Component)); n == 0 {
				fmt.Fprintf(out, "warning: no %s readings for %d\n", rc.Component, y)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
