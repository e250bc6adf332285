package pipeline

import (
	"sort"

	"github.com/sells-group/airmap/internal/aggregate"
	"github.com/sells-group/airmap/internal/config"
	"github.com/sells-group/airmap/internal/crs"
	"github.com/sells-group/airmap/internal/delta"
	"github.com/sells-group/airmap/internal/model"
)

// RunConfig is the immutable setup of one run. Build it with RunConfigFrom
// or fill it directly and call Validate; the orchestrator copies it on
// construction.
type RunConfig struct {
	Years     []int
	FirstYear int
	LastYear  int
	// Component is the station pollutant whose readings become X.
	Component string
	XName     string
	YName     string
	// EPSG is the planar CRS shared by districts and stations.
	EPSG              int
	IDW               aggregate.IDWConfig
	Breaks            model.BreaksPolicy
	Delta             delta.Config
	Workers           int
	IndicatorFallback bool
}

// RunConfigFrom converts the loaded configuration. The IDW radius is given in
// kilometres and converted to CRS units here.
func RunConfigFrom(cfg *config.Config) (RunConfig, error) {
	policy, err := model.ParseBreaksPolicy(cfg.Run.Breaks.Policy)
	if err != nil {
		return RunConfig{}, err
	}
	c, err := crs.RequireProjected(cfg.Input.Polygons.EPSG)
	if err != nil {
		return RunConfig{}, err
	}

	years := append([]int(nil), cfg.Run.Years...)
	if len(years) == 0 && cfg.Run.FirstYear > 0 && cfg.Run.LastYear >= cfg.Run.FirstYear {
		for y := cfg.Run.FirstYear; y <= cfg.Run.LastYear; y++ {
			years = append(years, y)
		}
	}

	deadbands := make(map[string]float64, len(cfg.Run.Delta.Deadbands))
	for k, v := range cfg.Run.Delta.Deadbands {
		deadbands[k] = v
	}

	rc := RunConfig{
		Years:     years,
		FirstYear: cfg.Run.FirstYear,
		LastYear:  cfg.Run.LastYear,
		Component: cfg.Run.Component,
		XName:     cfg.Run.XName,
		YName:     cfg.Run.YName,
		EPSG:      c.EPSG,
		IDW: aggregate.IDWConfig{
			K:           cfg.Run.IDW.K,
			Radius:      cfg.Run.IDW.MaxDistanceKM * c.UnitsPerKilometre(),
			MinDistance: cfg.Run.IDW.MinDistance,
		},
		Breaks: policy,
		Delta: delta.Config{
			Policy:    delta.Policy(cfg.Run.Delta.Policy),
			Deadband:  cfg.Run.Delta.Deadband,
			Deadbands: deadbands,
		},
		Workers:           cfg.Run.Workers,
		IndicatorFallback: cfg.Run.IndicatorFallback,
	}
	rc = rc.normalized()
	return rc, rc.Validate()
}

// normalized returns a deep copy with sorted unique years and the delta
// endpoints defaulted to the first and last year.
func (c RunConfig) normalized() RunConfig {
	seen := make(map[int]bool, len(c.Years))
	years := make([]int, 0, len(c.Years))
	for _, y := range c.Years {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Ints(years)
	c.Years = years
	if len(years) > 0 {
		if c.FirstYear == 0 {
			c.FirstYear = years[0]
		}
		if c.LastYear == 0 {
			c.LastYear = years[len(years)-1]
		}
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Breaks == "" {
		c.Breaks = model.BreaksPerYear
	}
	if c.Delta.Policy == "" {
		c.Delta.Policy = delta.PolicyDeadband
	}
	if c.Delta.Deadbands != nil {
		m := make(map[string]float64, len(c.Delta.Deadbands))
		for k, v := range c.Delta.Deadbands {
			m[k] = v
		}
		c.Delta.Deadbands = m
	}
	return c
}

// Validate reports the first problem as a ConfigError.
func (c RunConfig) Validate() error {
	if len(c.Years) == 0 {
		return model.NewConfigError("run", "no years configured")
	}
	if !contains(c.Years, c.FirstYear) {
		return model.NewConfigError("run", "first year %d is not among the run years %v", c.FirstYear, c.Years)
	}
	if !contains(c.Years, c.LastYear) {
		return model.NewConfigError("run", "last year %d is not among the run years %v", c.LastYear, c.Years)
	}
	if c.FirstYear > c.LastYear {
		return model.NewConfigError("run", "first year %d is after last year %d", c.FirstYear, c.LastYear)
	}
	if c.Component == "" {
		return model.NewConfigError("run", "no station component configured")
	}
	if c.XName == "" || c.YName == "" || c.XName == c.YName {
		return model.NewConfigError("run", "variable names must be set and differ (x=%q, y=%q)", c.XName, c.YName)
	}
	if _, err := model.ParseBreaksPolicy(string(c.Breaks)); err != nil {
		return err
	}
	if _, err := crs.RequireProjected(c.EPSG); err != nil {
		return err
	}
	if err := c.IDW.Validate(); err != nil {
		return err
	}
	return c.Delta.Validate()
}

func contains(years []int, y int) bool {
	for _, x := range years {
		if x == y {
			return true
		}
	}
	return false
}
