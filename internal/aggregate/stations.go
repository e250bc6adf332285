// Package aggregate reduces station readings and fine-grained indicator rows
// to one value per district and year.
package aggregate

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/spatial"
)

// Default IDW parameters. Distances are in index (CRS) units.
const (
	DefaultK           = 5
	DefaultRadius      = 80.0
	DefaultMinDistance = 1.0
)

// IDWConfig controls the inverse-distance fallback for districts without a
// station of their own.
type IDWConfig struct {
	K           int
	Radius      float64
	MinDistance float64
}

// DefaultIDW returns K=5, radius 80 and a minimum distance of 1 unit.
func DefaultIDW() IDWConfig {
	return IDWConfig{K: DefaultK, Radius: DefaultRadius, MinDistance: DefaultMinDistance}
}

// Validate rejects parameters that cannot produce an estimate.
func (c IDWConfig) Validate() error {
	switch {
	case c.K < 1:
		return model.NewConfigError("idw", "k must be at least 1, got %d", c.K)
	case !(c.Radius > 0) || math.IsInf(c.Radius, 0):
		return model.NewConfigError("idw", "radius must be a positive finite distance, got %g", c.Radius)
	case !(c.MinDistance > 0):
		return model.NewConfigError("idw", "minimum distance must be positive, got %g", c.MinDistance)
	}
	return nil
}

// StationAggregator turns station values into district values: the mean of
// the stations inside a district, or an IDW estimate from the nearest
// stations when the district has none.
type StationAggregator struct {
	index *spatial.Index
	cfg   IDWConfig
	log   *zap.Logger
}

// NewStationAggregator validates cfg and binds it to idx.
func NewStationAggregator(idx *spatial.Index, cfg IDWConfig) (*StationAggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &StationAggregator{
		index: idx,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "aggregate.stations")),
	}, nil
}

// Aggregate returns exactly one metric per district, in district code order.
// values must carry defined scalars only, as returned by
// model.StationTable.Series.
func (a *StationAggregator) Aggregate(year int, variable string, values []model.StationValue) []model.PolygonMetric {
	if len(values) == 0 {
		a.log.Warn("no station values; every district is a coverage gap",
			zap.Int("year", year), zap.String("variable", variable))
		codes := a.index.Codes()
		out := make([]model.PolygonMetric, len(codes))
		for i, code := range codes {
			out[i] = model.MissingMetric(code, year, variable, model.FlagCoverageGap)
		}
		return out
	}

	values = append([]model.StationValue(nil), values...)
	sort.Slice(values, func(i, j int) bool { return values[i].Station.Code < values[j].Station.Code })

	inside := make(map[string][]model.StationValue)
	points := make([]spatial.Point, 0, len(values))
	byCode := make(map[string]float64, len(values))
	for _, sv := range values {
		points = append(points, spatial.Point{ID: sv.Station.Code, Coord: sv.Station.Point})
		byCode[sv.Station.Code] = sv.Value
		if code, ok := a.index.Contains(sv.Station.Point); ok {
			inside[code] = append(inside[code], sv)
		} else {
			a.log.Debug("station outside all districts",
				zap.String("station", sv.Station.Code), zap.Int("year", year))
		}
	}

	near := spatial.NewPointIndex(points)
	codes := a.index.Codes()
	out := make([]model.PolygonMetric, 0, len(codes))
	for _, code := range codes {
		if in := inside[code]; len(in) > 0 {
			out = append(out, observedMean(code, year, variable, in))
			continue
		}
		rep, _ := a.index.Centroid(code)
		neighbors := near.Nearest(rep, a.cfg.K, a.cfg.Radius)
		if len(neighbors) == 0 {
			a.log.Warn("no station within radius",
				zap.String("district", code), zap.Int("year", year),
				zap.String("variable", variable), zap.Float64("radius", a.cfg.Radius))
			out = append(out, model.MissingMetric(code, year, variable, model.FlagCoverageGap))
			continue
		}
		out = append(out, a.idw(code, year, variable, neighbors, byCode))
	}
	return out
}

func observedMean(code string, year int, variable string, in []model.StationValue) model.PolygonMetric {
	sum := 0.0
	sources := make([]string, len(in))
	for i, sv := range in {
		sum += sv.Value
		sources[i] = sv.Station.Code
	}
	return model.PolygonMetric{
		Code:        code,
		Year:        year,
		Variable:    variable,
		Value:       model.Defined(sum / float64(len(in))),
		Provenance:  model.ProvenanceObserved,
		SourceCount: len(in),
		Sources:     sources,
	}
}

// idw computes Σ(w·v)/Σw with w = 1/max(d, MinDistance).
func (a *StationAggregator) idw(code string, year int, variable string, neighbors []spatial.Neighbor, byCode map[string]float64) model.PolygonMetric {
	var num, den float64
	sources := make([]string, len(neighbors))
	for i, n := range neighbors {
		w := 1 / math.Max(n.Distance, a.cfg.MinDistance)
		num += w * byCode[n.Code]
		den += w
		sources[i] = n.Code
	}
	return model.PolygonMetric{
		Code:        code,
		Year:        year,
		Variable:    variable,
		Value:       model.Defined(num / den),
		Provenance:  model.ProvenanceImputed,
		SourceCount: len(neighbors),
		Sources:     sources,
	}
}
