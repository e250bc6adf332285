// Package store persists run results in PostGIS.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/airmap/internal/config"
	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/pipeline"
)

// DefaultSchema holds the airmap tables when none is configured.
const DefaultSchema = "airmap"

// RunRecord is a stored run header.
type RunRecord struct {
	ID           string           `json:"id"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Years        []int            `json:"years"`
	FirstYear    int              `json:"first_year"`
	LastYear     int              `json:"last_year"`
	Component    string           `json:"component"`
	BreaksPolicy string           `json:"breaks_policy"`
	DeltaPolicy  string           `json:"delta_policy"`
	Summary      model.RunSummary `json:"summary"`
}

// Store defines the persistence interface for run results.
type Store interface {
	Migrate(ctx context.Context) error
	// SaveRun writes the run header, the district geometries and every
	// per-year and delta row.
	SaveRun(ctx context.Context, res *pipeline.Result, districts []model.District) error
	// LatestRun returns the most recently started run, or nil when none is
	// stored.
	LatestRun(ctx context.Context) (*RunRecord, error)
	Close() error
}

// Open returns the configured store. Driver "none" (or empty) returns a nil
// Store and no error.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "postgres", "postgis":
		if cfg.DatabaseURL == "" {
			return nil, model.NewConfigError("store", "store.database_url is required for driver %q", cfg.Driver)
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Schema, nil)
	}
	return nil, model.NewConfigError("store", "unknown driver %q (want none or postgres)", cfg.Driver)
}
