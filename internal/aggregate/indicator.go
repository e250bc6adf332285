package aggregate

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/ags"
	"github.com/sells-group/airmap/internal/model"
)

// IndicatorAggregator averages indicator rows keyed by finer administrative
// codes onto the district codes they extend.
type IndicatorAggregator struct {
	codes  []string
	width  int
	byYear map[int][]model.IndicatorValue
	log    *zap.Logger
}

// NewIndicatorAggregator groups rows by year and checks that the two code
// schemes are compatible. District codes must share one width. Zero rows
// joining any district is a configuration error, never an empty result.
func NewIndicatorAggregator(codes []string, rows []model.IndicatorValue) (*IndicatorAggregator, error) {
	if len(codes) == 0 {
		return nil, model.NewConfigError("indicator", "no districts to join against")
	}
	width := len(codes[0])
	known := make(map[string]bool, len(codes))
	for _, c := range codes {
		if len(c) != width {
			return nil, model.NewConfigError("indicator",
				"district codes have mixed widths (%q has %d digits, expected %d)", c, len(c), width)
		}
		known[c] = true
	}

	a := &IndicatorAggregator{
		codes:  codes,
		width:  width,
		byYear: make(map[int][]model.IndicatorValue),
		log:    zap.L().With(zap.String("component", "aggregate.indicator")),
	}
	joined, shorter := 0, 0
	for _, r := range rows {
		if len(r.Code) < width {
			shorter++
			continue
		}
		if known[ags.Truncate(r.Code, width)] {
			joined++
		}
		a.byYear[r.Year] = append(a.byYear[r.Year], r)
	}
	if joined == 0 {
		sample := ""
		if len(rows) > 0 {
			sample = rows[0].Code
		}
		return nil, model.NewConfigError("indicator",
			"none of %d indicator codes (e.g. %q) share a %d-digit prefix with a district code (e.g. %q); %d codes are shorter than the district codes",
			len(rows), sample, width, codes[0], shorter)
	}
	a.log.Debug("indicator joined",
		zap.Int("rows", len(rows)), zap.Int("joined", joined), zap.Int("width", width))
	return a, nil
}

// Years returns the years the indicator covers, ascending.
func (a *IndicatorAggregator) Years() []int {
	years := make([]int, 0, len(a.byYear))
	for y := range a.byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// HasYear reports whether the indicator has rows for year.
func (a *IndicatorAggregator) HasYear(year int) bool {
	return len(a.byYear[year]) > 0
}

// Aggregate returns one metric per district for year, in the order of the
// codes given to the constructor. Undefined rows are ignored; a district
// without any defined row is missing.
func (a *IndicatorAggregator) Aggregate(year int, variable string) []model.PolygonMetric {
	return a.aggregateRows(year, year, variable)
}

// AggregateFrom aggregates the rows of sourceYear but labels the metrics with
// year. It serves indicators that lag behind the station data.
func (a *IndicatorAggregator) AggregateFrom(year, sourceYear int, variable string) []model.PolygonMetric {
	return a.aggregateRows(year, sourceYear, variable)
}

func (a *IndicatorAggregator) aggregateRows(year, sourceYear int, variable string) []model.PolygonMetric {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range a.byYear[sourceYear] {
		f, ok := r.Value.Float()
		if !ok {
			continue
		}
		code := ags.Truncate(r.Code, a.width)
		sums[code] += f
		counts[code]++
	}

	out := make([]model.PolygonMetric, 0, len(a.codes))
	for _, code := range a.codes {
		n := counts[code]
		if n == 0 {
			out = append(out, model.MissingMetric(code, year, variable, model.FlagMissingInput))
			continue
		}
		out = append(out, model.PolygonMetric{
			Code:        code,
			Year:        year,
			Variable:    variable,
			Value:       model.Defined(sums[code] / float64(n)),
			Provenance:  model.ProvenanceObserved,
			SourceCount: n,
		})
	}
	return out
}
