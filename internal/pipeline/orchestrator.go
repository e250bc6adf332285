// Package pipeline sequences aggregation, classification and deltas over the
// years of a run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/airmap/internal/aggregate"
	"github.com/sells-group/airmap/internal/classify"
	"github.com/sells-group/airmap/internal/delta"
	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/spatial"
)

// Inputs are the read-only tables of a run. Station points and district
// geometries must share the CRS named in RunConfig.EPSG.
type Inputs struct {
	Districts []model.District
	Stations  *model.StationTable
	Indicator []model.IndicatorValue
}

// Orchestrator runs the per-year stages and the delta stage.
type Orchestrator struct {
	cfg       RunConfig
	index     *spatial.Index
	stations  *aggregate.StationAggregator
	indicator *aggregate.IndicatorAggregator
	table     *model.StationTable
	log       *zap.Logger
}

// New validates cfg and the inputs. Every error returned here is fatal for
// the run; configuration problems are *model.ConfigError.
func New(cfg RunConfig, in Inputs) (*Orchestrator, error) {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(in.Districts) == 0 {
		return nil, model.NewConfigError("pipeline", "no districts loaded")
	}
	if in.Stations == nil {
		in.Stations = &model.StationTable{}
	}

	idx, err := spatial.New(in.Districts)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build spatial index")
	}
	sa, err := aggregate.NewStationAggregator(idx, cfg.IDW)
	if err != nil {
		return nil, err
	}
	ia, err := aggregate.NewIndicatorAggregator(idx.Codes(), in.Indicator)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:       cfg,
		index:     idx,
		stations:  sa,
		indicator: ia,
		table:     in.Stations,
		log:       zap.L().With(zap.String("component", "pipeline")),
	}, nil
}

// Config returns the run configuration in effect.
func (o *Orchestrator) Config() RunConfig { return o.cfg }

// Index returns the spatial index built over the districts.
func (o *Orchestrator) Index() *spatial.Index { return o.index }

// Run executes the pipeline. Per-year failures are recorded on their
// YearResult and counted; they never fail the run. The returned error is
// non-nil only when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Config:    o.cfg,
		StartedAt: time.Now().UTC(),
	}
	o.log.Info("pipeline: starting run",
		zap.String("run_id", res.RunID),
		zap.Ints("years", o.cfg.Years),
		zap.String("breaks_policy", string(o.cfg.Breaks)),
		zap.Int("districts", o.index.Len()),
	)

	var phasesMu sync.Mutex
	trackPhase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		p := Phase{Name: name, Duration: time.Since(start)}
		if err != nil {
			p.Err = err.Error()
			o.log.Error("pipeline: phase failed", zap.String("phase", name), zap.Error(err))
		} else {
			o.log.Info("pipeline: phase complete",
				zap.String("phase", name), zap.Int64("duration_ms", p.Duration.Milliseconds()))
		}
		phasesMu.Lock()
		res.Phases = append(res.Phases, p)
		phasesMu.Unlock()
		return err
	}

	// ===== Phase 1: aggregate every year in parallel =====
	years := make([]YearResult, len(o.cfg.Years))
	err := trackPhase("aggregate", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Workers)
		for i, year := range o.cfg.Years {
			g.Go(func() error {
				years[i] = o.aggregateYear(gctx, year)
				return nil // don't abort the run on a single year
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: aggregate")
	}

	// ===== Phase 2: breakpoints =====
	var xBreaks, yBreaks map[int]model.Breaks
	_ = trackPhase("breaks", func() error {
		xBreaks = classify.BreaksByYear(o.cfg.XName, o.cfg.Breaks, valuesByYear(years, func(r YearResult) []model.PolygonMetric { return r.X }))
		yBreaks = classify.BreaksByYear(o.cfg.YName, o.cfg.Breaks, valuesByYear(years, func(r YearResult) []model.PolygonMetric { return r.Y }))
		return nil
	})

	// ===== Phase 3: classify =====
	_ = trackPhase("classify", func() error {
		for i := range years {
			r := &years[i]
			if r.Err != nil {
				continue
			}
			xb, okX := xBreaks[r.Year]
			yb, okY := yBreaks[r.Year]
			if okX {
				r.XBreaks = &xb
			}
			if okY {
				r.YBreaks = &yb
			}
			if !okX || !okY {
				o.log.Warn("pipeline: no defined values to derive breaks from",
					zap.Int("year", r.Year), zap.Bool("x", okX), zap.Bool("y", okY))
			}
			r.Rows = classify.ClassifyYear(r.Year, o.cfg.Breaks, yb, xb, r.Y, r.X)
		}
		return nil
	})
	res.Years = years

	// ===== Phase 4: deltas, once both endpoints are complete =====
	_ = trackPhase("delta", func() error {
		o.runDelta(res)
		return nil
	})

	res.FinishedAt = time.Now().UTC()
	res.Summary = o.summarize(res)
	o.log.Info("pipeline: run complete",
		zap.String("run_id", res.RunID),
		zap.Int("observed", res.Summary.Observed),
		zap.Int("imputed", res.Summary.Imputed),
		zap.Int("coverage_gaps", res.Summary.CoverageGaps),
		zap.Int("undefined_classes", res.Summary.UndefinedClasses),
		zap.Int("failed_years", res.Summary.FailedYears),
	)
	return res, nil
}

// aggregateYear is the pure per-year stage. It never shares mutable state with
// sibling years; panics are turned into a failed YearResult.
func (o *Orchestrator) aggregateYear(ctx context.Context, year int) (r YearResult) {
	r = YearResult{Year: year, IndicatorYear: year}
	log := o.log.With(zap.Int("year", year))

	defer func() {
		if p := recover(); p != nil {
			r = YearResult{Year: year, Err: eris.Errorf("pipeline: year %d panicked: %v", year, p)}
		}
		if r.Err != nil {
			log.Warn("pipeline: year failed", zap.Error(r.Err))
		}
	}()

	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}

	series := o.table.Series(year, o.cfg.Component)
	if len(series) == 0 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("%s: no %s readings for %d; every district is a coverage gap", o.cfg.XName, o.cfg.Component, year))
	}
	r.X = o.stations.Aggregate(year, o.cfg.XName, series)

	switch {
	case o.indicator.HasYear(year):
		r.Y = o.indicator.Aggregate(year, o.cfg.YName)
	case o.cfg.IndicatorFallback:
		src, ok := latestBefore(o.indicator.Years(), year)
		if !ok {
			r.Y = o.indicator.Aggregate(year, o.cfg.YName)
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s: no indicator rows for %d or earlier", o.cfg.YName, year))
			break
		}
		r.IndicatorYear = src
		r.Y = o.indicator.AggregateFrom(year, src, o.cfg.YName)
		r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %d uses indicator year %d", o.cfg.YName, year, src))
	default:
		r.Y = o.indicator.Aggregate(year, o.cfg.YName)
		r.Warnings = append(r.Warnings, fmt.Sprintf("%s: no indicator rows for %d", o.cfg.YName, year))
	}
	for _, w := range r.Warnings {
		log.Warn("pipeline: " + w)
	}

	log.Debug("pipeline: year aggregated", zap.Int("stations", len(series)))
	return r
}

func (o *Orchestrator) runDelta(res *Result) {
	if o.cfg.FirstYear == o.cfg.LastYear {
		res.Warnings = append(res.Warnings, "delta skipped: first and last year are the same")
		return
	}
	firstX, firstY, okFirst := o.endpoint(res.Year(o.cfg.FirstYear))
	lastX, lastY, okLast := o.endpoint(res.Year(o.cfg.LastYear))
	failed := !okFirst || !okLast
	if failed {
		msg := fmt.Sprintf("deltas undefined: year %d or %d failed", o.cfg.FirstYear, o.cfg.LastYear)
		res.Warnings = append(res.Warnings, msg)
		o.log.Warn("pipeline: " + msg)
	}

	xRecords := delta.Compute(o.cfg.XName, firstX, lastX)
	yRecords := delta.Compute(o.cfg.YName, firstY, lastY)
	if failed {
		markYearFailed(xRecords)
		markYearFailed(yRecords)
	}

	xs, xb := delta.Classify(xRecords, o.cfg.XName, o.cfg.Delta)
	ys, yb := delta.Classify(yRecords, o.cfg.YName, o.cfg.Delta)
	for _, b := range []*model.Breaks{yb, xb} {
		if b != nil {
			res.DeltaBreaks = append(res.DeltaBreaks, *b)
		}
	}
	res.DeltaPolicy = o.cfg.Delta.Describe(o.cfg.XName, o.cfg.YName)
	res.Deltas = delta.Pair(ys, xs, res.DeltaPolicy)
}

// endpoint returns the metrics of a delta endpoint. A failed year stands in
// as undefined metrics for every district so no district drops out of the
// delta table.
func (o *Orchestrator) endpoint(r *YearResult) (x, y []model.PolygonMetric, ok bool) {
	if r != nil && r.Err == nil {
		return r.X, r.Y, true
	}
	year := 0
	if r != nil {
		year = r.Year
	}
	codes := o.index.Codes()
	x = make([]model.PolygonMetric, len(codes))
	y = make([]model.PolygonMetric, len(codes))
	for i, code := range codes {
		x[i] = model.MissingMetric(code, year, o.cfg.XName, model.FlagYearFailed)
		y[i] = model.MissingMetric(code, year, o.cfg.YName, model.FlagYearFailed)
	}
	return x, y, false
}

func markYearFailed(records []model.DeltaRecord) {
	for i := range records {
		records[i].Flags = append(records[i].Flags, model.FlagYearFailed)
	}
}

func (o *Orchestrator) summarize(res *Result) model.RunSummary {
	s := model.RunSummary{
		RunID:        res.RunID,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Years:        o.cfg.Years,
		FirstYear:    o.cfg.FirstYear,
		LastYear:     o.cfg.LastYear,
		BreaksPolicy: o.cfg.Breaks,
		DeltaPolicy:  res.DeltaPolicy,
		Districts:    o.index.Len(),
	}

	degenerate := make(map[string]bool)
	noteBreaks := func(b *model.Breaks, scope string) {
		if b == nil || !b.Degenerate {
			return
		}
		key := fmt.Sprintf("%s/%s/%d", scope, b.Variable, b.Year)
		if degenerate[key] {
			return
		}
		degenerate[key] = true
		msg := fmt.Sprintf("degenerate %s breaks for %s: all %d values equal %g; middle bin assigned",
			scope, b.Variable, b.N, b.Min)
		if b.Year != 0 {
			msg = fmt.Sprintf("degenerate %s breaks for %s in %d: all %d values equal %g; middle bin assigned",
				scope, b.Variable, b.Year, b.N, b.Min)
		}
		s.Warnings = append(s.Warnings, msg)
		o.log.Warn("pipeline: " + msg)
	}

	for _, r := range res.Years {
		if r.Err != nil {
			s.FailedYears++
			s.Warnings = append(s.Warnings, fmt.Sprintf("year %d failed: %v", r.Year, r.Err))
			continue
		}
		s.Warnings = append(s.Warnings, r.Warnings...)
		for _, m := range r.X {
			switch m.Provenance {
			case model.ProvenanceObserved:
				s.Observed++
			case model.ProvenanceImputed:
				s.Imputed++
			}
			if m.HasFlag(model.FlagCoverageGap) {
				s.CoverageGaps++
			}
		}
		for _, m := range r.Y {
			if !m.Value.IsDefined() {
				s.MissingIndicator++
			}
		}
		for _, row := range r.Rows {
			if !row.Class.Defined() {
				s.UndefinedClasses++
			}
		}
		noteBreaks(r.XBreaks, "level")
		noteBreaks(r.YBreaks, "level")
	}
	for i := range res.DeltaBreaks {
		noteBreaks(&res.DeltaBreaks[i], "delta")
	}
	s.DegenerateBreaks = len(degenerate)

	for _, d := range res.Deltas {
		if d.X.HasFlag(model.FlagZeroDivision) {
			s.ZeroDivisions++
		}
		if d.Y.HasFlag(model.FlagZeroDivision) {
			s.ZeroDivisions++
		}
		if !d.Class.Defined() {
			s.UndefinedDeltas++
		}
	}
	s.Warnings = append(s.Warnings, res.Warnings...)
	return s
}

func valuesByYear(years []YearResult, pick func(YearResult) []model.PolygonMetric) map[int][]model.Value {
	out := make(map[int][]model.Value, len(years))
	for _, r := range years {
		if r.Err != nil {
			continue
		}
		out[r.Year] = classify.Values(pick(r))
	}
	return out
}

// latestBefore returns the greatest year in sorted years that is <= year.
func latestBefore(years []int, year int) (int, bool) {
	i := sort.SearchInts(years, year+1)
	if i == 0 {
		return 0, false
	}
	return years[i-1], true
}
