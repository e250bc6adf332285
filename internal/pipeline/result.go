package pipeline

import (
	"time"

	"github.com/sells-group/airmap/internal/model"
)

// YearResult is the output slot of one year. Err is set when the year failed;
// the other fields are then empty.
type YearResult struct {
	Year int
	// IndicatorYear is the indicator year the Y values were taken from.
	IndicatorYear int
	X             []model.PolygonMetric
	Y             []model.PolygonMetric
	Rows          []model.DistrictYear
	XBreaks       *model.Breaks
	YBreaks       *model.Breaks
	Warnings      []string
	Err           error
}

// Phase records the wall time of one pipeline stage.
type Phase struct {
	Name     string
	Duration time.Duration
	Err      string
}

// Result is the terminal artifact of a run.
type Result struct {
	RunID       string
	Config      RunConfig
	StartedAt   time.Time
	FinishedAt  time.Time
	Years       []YearResult
	Deltas      []model.DistrictDelta
	DeltaBreaks []model.Breaks
	DeltaPolicy string
	Summary     model.RunSummary
	Phases      []Phase
	Warnings    []string
}

// Year returns the result slot for year, or nil.
func (r *Result) Year(year int) *YearResult {
	for i := range r.Years {
		if r.Years[i].Year == year {
			return &r.Years[i]
		}
	}
	return nil
}

// Rows returns the classified rows of every successful year in year order.
func (r *Result) Rows() []model.DistrictYear {
	var out []model.DistrictYear
	for _, y := range r.Years {
		out = append(out, y.Rows...)
	}
	return out
}

// Breaks returns every level breakpoint set used, one per variable and
// successful year.
func (r *Result) Breaks() []model.Breaks {
	var out []model.Breaks
	for _, y := range r.Years {
		for _, b := range []*model.Breaks{y.XBreaks, y.YBreaks} {
			if b != nil {
				out = append(out, *b)
			}
		}
	}
	return out
}
