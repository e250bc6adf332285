package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "airmap", cfg.Store.Schema)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Input.Polygons.CodeWidth)
	assert.Equal(t, 25832, cfg.Input.Polygons.EPSG)
	assert.Equal(t, 4326, cfg.Input.Stations.EPSG)
	assert.Contains(t, cfg.Input.Polygons.CodeFields, "AGS5")
	assert.Equal(t, ";", cfg.Input.Indicator.Delimiter)
	assert.Equal(t, 8, cfg.Input.Indicator.CodeWidth)
	assert.Equal(t, "NO2", cfg.Run.Component)
	assert.Equal(t, "no2", cfg.Run.XName)
	assert.Equal(t, "commute", cfg.Run.YName)
	assert.Equal(t, 4, cfg.Run.Workers)
	assert.Equal(t, 5, cfg.Run.IDW.K)
	assert.InDelta(t, 80.0, cfg.Run.IDW.MaxDistanceKM, 0.001)
	assert.InDelta(t, 1.0, cfg.Run.IDW.MinDistance, 0.001)
	assert.Equal(t, "per_year", cfg.Run.Breaks.Policy)
	assert.Equal(t, "deadband", cfg.Run.Delta.Policy)
	assert.InDelta(t, 1.0, cfg.Run.Delta.Deadband, 0.001)
	assert.Equal(t, "https://www.umweltbundesamt.de/api/air_data/v2", cfg.UBA.BaseURL)
	assert.Equal(t, 3, cfg.UBA.MaxRetries)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, []string{"csv", "geojson"}, cfg.Output.Formats)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/airmap
log:
  level: debug
  format: console
run:
  years: [2019, 2020, 2021, 2022, 2023]
  first_year: 2019
  last_year: 2023
  breaks:
    policy: fixed
  delta:
    deadbands:
      no2: 0.5
      commute: 2
output:
  subsets:
    bayern: "09"
    oberpfalz: "093"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []int{2019, 2020, 2021, 2022, 2023}, cfg.Run.Years)
	assert.Equal(t, "fixed", cfg.Run.Breaks.Policy)
	assert.InDelta(t, 0.5, cfg.Run.Delta.Deadbands["no2"], 0.001)
	assert.Equal(t, "093", cfg.Output.Subsets["oberpfalz"])
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Run.IDW.K)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bayern.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  workers: 2\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Run.Workers)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: none
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("AIRMAP_STORE_DRIVER", "postgres")
	t.Setenv("AIRMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("AIRMAP_RUN_IDW_K", "3")
	t.Setenv("AIRMAP_RUN_BREAKS_POLICY", "fixed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Run.IDW.K)
	assert.Equal(t, "fixed", cfg.Run.Breaks.Policy)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the fields the run mode needs.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "none"
	cfg.Input.Polygons.Path = "kreise.gpkg"
	cfg.Input.Polygons.CodeWidth = 5
	cfg.Input.Stations.Path = "stations.geojson"
	cfg.Input.Indicator.Path = "pendler.csv"
	cfg.Run.XName = "no2"
	cfg.Run.YName = "commute"
	cfg.Run.Workers = 4
	cfg.Run.Years = []int{2019, 2023}
	cfg.Output.Formats = []string{"csv"}
	cfg.UBA.BaseURL = "https://example.test"
	cfg.UBA.RatePerSec = 1
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
	assert.NoError(t, validDefaults().Validate("validate"))
}

func TestValidateRun_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "input.polygons.path is required")
	assert.Contains(t, err.Error(), "input.indicator.path is required")
	assert.Contains(t, err.Error(), "run.workers must be between 1 and 64")
	assert.Contains(t, err.Error(), "output.formats must not be empty")
	assert.True(t, model.IsConfigError(err))
}

func TestValidateRun_YearRange(t *testing.T) {
	cfg := validDefaults()
	cfg.Run.Years = nil
	cfg.Run.FirstYear = 2019
	cfg.Run.LastYear = 2023
	assert.NoError(t, cfg.Validate("run"))

	cfg.Run.LastYear = 2018
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "run.years")
}

func TestValidateRun_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/airmap"
	assert.NoError(t, cfg.Validate("run"))

	cfg.Store.Driver = "sqlite"
	err = cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestValidateRun_Formats(t *testing.T) {
	cfg := validDefaults()
	cfg.Output.Formats = []string{"csv", "shp"}
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "shp"`)
}

func TestValidateFetch(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("fetch"))

	cfg := validDefaults()
	cfg.UBA.RatePerSec = 0
	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "uba.rate_per_sec")
}

func TestValidateMigrate(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/airmap"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
