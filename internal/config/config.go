package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Run    RunConfig    `yaml:"run" mapstructure:"run"`
	UBA    UBAConfig    `yaml:"uba" mapstructure:"uba"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the optional PostGIS result store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// InputConfig locates the three input tables.
type InputConfig struct {
	Polygons  PolygonsConfig  `yaml:"polygons" mapstructure:"polygons"`
	Stations  StationsConfig  `yaml:"stations" mapstructure:"stations"`
	Indicator IndicatorConfig `yaml:"indicator" mapstructure:"indicator"`
}

// PolygonsConfig configures the district boundary source.
type PolygonsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// Layer selects the GeoPackage table; empty picks the first features table.
	Layer      string   `yaml:"layer" mapstructure:"layer"`
	CodeFields []string `yaml:"code_fields" mapstructure:"code_fields"`
	NameFields []string `yaml:"name_fields" mapstructure:"name_fields"`
	CodeWidth  int      `yaml:"code_width" mapstructure:"code_width"`
	EPSG       int      `yaml:"epsg" mapstructure:"epsg"`
	// LevelField and LevelValues keep only features of one administrative
	// level, e.g. art in (Landkreis, Kreisfreie Stadt).
	LevelField  string   `yaml:"level_field" mapstructure:"level_field"`
	LevelValues []string `yaml:"level_values" mapstructure:"level_values"`
	Prefixes    []string `yaml:"prefixes" mapstructure:"prefixes"`
}

// StationsConfig configures the station table.
type StationsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// ReadingsPath is the long-format readings CSV for CSV station tables.
	ReadingsPath string `yaml:"readings_path" mapstructure:"readings_path"`
	EPSG         int    `yaml:"epsg" mapstructure:"epsg"`
}

// IndicatorConfig configures the indicator table.
type IndicatorConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	Sheet      string `yaml:"sheet" mapstructure:"sheet"`
	Delimiter  string `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding   string `yaml:"encoding" mapstructure:"encoding"`
	CodeColumn string `yaml:"code_column" mapstructure:"code_column"`
	CodeWidth  int    `yaml:"code_width" mapstructure:"code_width"`
	SkipRows   int    `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// RunConfig configures one pipeline run.
type RunConfig struct {
	Years     []int  `yaml:"years" mapstructure:"years"`
	FirstYear int    `yaml:"first_year" mapstructure:"first_year"`
	LastYear  int    `yaml:"last_year" mapstructure:"last_year"`
	Component string `yaml:"component" mapstructure:"component"`
	XName     string `yaml:"x_name" mapstructure:"x_name"`
	YName     string `yaml:"y_name" mapstructure:"y_name"`
	Workers   int    `yaml:"workers" mapstructure:"workers"`
	// IndicatorFallback uses the latest earlier indicator year when the
	// indicator has no rows for a run year.
	IndicatorFallback bool         `yaml:"indicator_fallback" mapstructure:"indicator_fallback"`
	IDW               IDWConfig    `yaml:"idw" mapstructure:"idw"`
	Breaks            BreaksConfig `yaml:"breaks" mapstructure:"breaks"`
	Delta             DeltaConfig  `yaml:"delta" mapstructure:"delta"`
}

// IDWConfig configures the inverse-distance fallback.
type IDWConfig struct {
	K             int     `yaml:"k" mapstructure:"k"`
	MaxDistanceKM float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
	MinDistance   float64 `yaml:"min_distance" mapstructure:"min_distance"`
}

// BreaksConfig configures tertile breakpoints.
type BreaksConfig struct {
	Policy string `yaml:"policy" mapstructure:"policy"`
}

// DeltaConfig configures delta direction classification.
type DeltaConfig struct {
	Policy    string             `yaml:"policy" mapstructure:"policy"`
	Deadband  float64            `yaml:"deadband" mapstructure:"deadband"`
	Deadbands map[string]float64 `yaml:"deadbands" mapstructure:"deadbands"`
}

// UBAConfig configures the Umweltbundesamt air data API client.
type UBAConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Network     string  `yaml:"network" mapstructure:"network"`
	Language    string  `yaml:"language" mapstructure:"language"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// OutputConfig configures the written artifacts.
type OutputConfig struct {
	Dir     string            `yaml:"dir" mapstructure:"dir"`
	Formats []string          `yaml:"formats" mapstructure:"formats"`
	Subsets map[string]string `yaml:"subsets" mapstructure:"subsets"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from ./config.yaml when path is
// empty, and the environment.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("AIRMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.schema", "airmap")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("input.polygons.code_fields", []string{"AGS5", "ags", "rs", "AGS", "KREISE", "KREIS", "RS"})
	v.SetDefault("input.polygons.name_fields", []string{"GEN", "name", "NAME", "bez"})
	v.SetDefault("input.polygons.code_width", 5)
	v.SetDefault("input.polygons.epsg", 25832)
	v.SetDefault("input.stations.epsg", 4326)
	v.SetDefault("input.indicator.delimiter", ";")
	v.SetDefault("input.indicator.encoding", "utf-8")
	v.SetDefault("input.indicator.code_width", 8)
	v.SetDefault("run.component", "NO2")
	v.SetDefault("run.x_name", "no2")
	v.SetDefault("run.y_name", "commute")
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.idw.k", 5)
	v.SetDefault("run.idw.max_distance_km", 80.0)
	v.SetDefault("run.idw.min_distance", 1.0)
	v.SetDefault("run.breaks.policy", "per_year")
	v.SetDefault("run.delta.policy", "deadband")
	v.SetDefault("run.delta.deadband", 1.0)
	v.SetDefault("uba.base_url", "https://www.umweltbundesamt.de/api/air_data/v2")
	v.SetDefault("uba.network", "BY")
	v.SetDefault("uba.language", "de")
	v.SetDefault("uba.rate_per_sec", 2.0)
	v.SetDefault("uba.timeout_secs", 30)
	v.SetDefault("uba.max_retries", 3)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.formats", []string{"csv", "geojson"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
