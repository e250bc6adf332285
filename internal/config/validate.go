package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/airmap/internal/model"
)

// Validate checks that the fields a command needs are present. mode is the
// command name: run, validate, fetch or migrate.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case "run", "validate":
		require(c.Input.Polygons.Path != "", "input.polygons.path is required")
		require(c.Input.Stations.Path != "", "input.stations.path is required")
		require(c.Input.Indicator.Path != "", "input.indicator.path is required")
		require(c.Input.Polygons.CodeWidth > 0, "input.polygons.code_width must be > 0")
		require(c.Run.XName != "" && c.Run.YName != "", "run.x_name and run.y_name are required")
		require(c.Run.XName != c.Run.YName, "run.x_name and run.y_name must differ")
		require(c.Run.Workers >= 1 && c.Run.Workers <= 64, "run.workers must be between 1 and 64")
		require(len(c.Run.Years) > 0 || (c.Run.FirstYear > 0 && c.Run.LastYear >= c.Run.FirstYear),
			"run.years or run.first_year/run.last_year are required")
		if mode == "run" {
			require(len(c.Output.Formats) > 0, "output.formats must not be empty")
			for _, f := range c.Output.Formats {
				require(f == "csv" || f == "geojson" || f == "gpkg",
					fmt.Sprintf("output.formats: unknown format %q", f))
			}
			c.validateStore(require)
		}
	case "fetch":
		require(c.UBA.BaseURL != "", "uba.base_url is required")
		require(c.UBA.RatePerSec > 0, "uba.rate_per_sec must be > 0")
		require(c.Input.Stations.Path != "", "input.stations.path is required")
		require(len(c.Run.Years) > 0 || c.Run.FirstYear > 0, "run.years or run.first_year is required")
	case "migrate":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return model.NewConfigError("config", "%s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore(require func(bool, string)) {
	switch c.Store.Driver {
	case "", "none":
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	default:
		require(false, fmt.Sprintf("store.driver: unknown driver %q", c.Store.Driver))
	}
}
