// Package delta computes first-to-last changes per district and classifies
// their direction.
package delta

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/airmap/internal/classify"
	"github.com/sells-group/airmap/internal/model"
)

// Policy selects how deltas are mapped to a direction.
type Policy string

const (
	// PolicyDeadband treats |delta| < threshold as stable.
	PolicyDeadband Policy = "deadband"
	// PolicyTertile bins the deltas of all districts into tertiles.
	PolicyTertile Policy = "tertile"
)

// Config is the direction classification setup. Deadbands overrides
// Deadband per variable.
type Config struct {
	Policy    Policy
	Deadband  float64
	Deadbands map[string]float64
}

// Validate rejects unknown policies and negative thresholds.
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyDeadband, PolicyTertile:
	default:
		return model.NewConfigError("delta", "unknown policy %q (want %q or %q)", c.Policy, PolicyDeadband, PolicyTertile)
	}
	if c.Deadband < 0 || math.IsNaN(c.Deadband) {
		return model.NewConfigError("delta", "deadband must be non-negative, got %g", c.Deadband)
	}
	for v, th := range c.Deadbands {
		if th < 0 || math.IsNaN(th) {
			return model.NewConfigError("delta", "deadband for %s must be non-negative, got %g", v, th)
		}
	}
	return nil
}

// Threshold returns the deadband for variable.
func (c Config) Threshold(variable string) float64 {
	if th, ok := c.Deadbands[variable]; ok {
		return th
	}
	return c.Deadband
}

// Describe renders the policy for output manifests, e.g.
// "deadband(commute=0.5,no2=1)" or "tertile".
func (c Config) Describe(variables ...string) string {
	if c.Policy != PolicyDeadband {
		return string(c.Policy)
	}
	sorted := append([]string(nil), variables...)
	sort.Strings(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = fmt.Sprintf("%s=%g", v, c.Threshold(v))
	}
	return fmt.Sprintf("deadband(%s)", strings.Join(parts, ","))
}

// Compute returns one record per district present in first or last, sorted
// by code. Absolute is last-first. Percent is (last-first)/|first|*100 and is
// undefined when first is zero. A missing endpoint leaves every delta
// undefined.
func Compute(variable string, first, last []model.PolygonMetric) []model.DeltaRecord {
	firstBy := make(map[string]model.Value, len(first))
	lastBy := make(map[string]model.Value, len(last))
	var codes []string
	seen := make(map[string]bool)
	for _, m := range first {
		firstBy[m.Code] = m.Value
		if !seen[m.Code] {
			seen[m.Code] = true
			codes = append(codes, m.Code)
		}
	}
	for _, m := range last {
		lastBy[m.Code] = m.Value
		if !seen[m.Code] {
			seen[m.Code] = true
			codes = append(codes, m.Code)
		}
	}
	sort.Strings(codes)

	out := make([]model.DeltaRecord, 0, len(codes))
	for _, code := range codes {
		out = append(out, Record(code, variable, firstBy[code], lastBy[code]))
	}
	return out
}

// Record computes the delta of a single district.
func Record(code, variable string, first, last model.Value) model.DeltaRecord {
	r := model.DeltaRecord{Code: code, Variable: variable, First: first, Last: last}
	f, okF := first.Float()
	l, okL := last.Float()
	if !okF || !okL {
		r.Flags = append(r.Flags, model.FlagMissingInput)
		return r
	}
	r.Absolute = model.Defined(l - f)
	if f == 0 {
		r.Flags = append(r.Flags, model.FlagZeroDivision)
		return r
	}
	r.Percent = model.Defined((l - f) / math.Abs(f) * 100)
	return r
}

// Classify sets Direction on every record. Under the tertile policy the
// breaks computed from the defined absolute deltas are returned as well.
func Classify(records []model.DeltaRecord, variable string, cfg Config) ([]model.DeltaRecord, *model.Breaks) {
	out := append([]model.DeltaRecord(nil), records...)
	if cfg.Policy == PolicyTertile {
		values := make([]model.Value, len(out))
		for i, r := range out {
			values[i] = r.Absolute
		}
		b, ok := classify.Tertiles(variable, model.BreaksDeltaTertile, 0, values)
		if !ok {
			return out, nil
		}
		for i := range out {
			out[i].Direction = Direction(classify.Bin(b, out[i].Absolute))
			if b.Degenerate && out[i].Absolute.IsDefined() {
				out[i].Flags = append(out[i].Flags, model.FlagDegenerateBreaks)
			}
		}
		return out, &b
	}

	th := cfg.Threshold(variable)
	for i := range out {
		out[i].Direction = Deadband(out[i].Absolute, th)
	}
	return out, nil
}

// Direction maps a tertile bin to a direction.
func Direction(bin int) model.Direction {
	switch bin {
	case 1:
		return model.DirectionDecrease
	case 2:
		return model.DirectionStable
	case 3:
		return model.DirectionIncrease
	}
	return model.DirectionUndefined
}

// Deadband classifies d: |d| < threshold is stable, otherwise the sign
// decides. A zero delta is always stable.
func Deadband(d model.Value, threshold float64) model.Direction {
	f, ok := d.Float()
	switch {
	case !ok:
		return model.DirectionUndefined
	case math.Abs(f) < threshold || f == 0:
		return model.DirectionStable
	case f > 0:
		return model.DirectionIncrease
	}
	return model.DirectionDecrease
}

// Pair joins the classified y and x records by code into delta rows.
func Pair(ys, xs []model.DeltaRecord, policy string) []model.DistrictDelta {
	yBy := make(map[string]model.DeltaRecord, len(ys))
	for _, r := range ys {
		yBy[r.Code] = r
	}
	out := make([]model.DistrictDelta, 0, len(xs))
	for _, x := range xs {
		y, ok := yBy[x.Code]
		if !ok {
			y = model.DeltaRecord{Code: x.Code, Flags: []model.Flag{model.FlagMissingInput}}
		}
		out = append(out, model.DistrictDelta{
			Code:   x.Code,
			X:      x,
			Y:      y,
			Class:  model.DeltaClass{Y: y.Direction, X: x.Direction},
			Policy: policy,
		})
	}
	return out
}
