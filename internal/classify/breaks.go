// Package classify derives tertile breakpoints and assigns 3x3 bivariate
// classes.
package classify

import (
	"math"
	"sort"

	"github.com/sells-group/airmap/internal/model"
)

// Quantile returns the q-quantile of sorted by linear interpolation between
// closest ranks. sorted must be ascending and non-empty.
func Quantile(sorted []float64, q float64) float64 {
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Tertiles computes breakpoints from the defined values. ok is false when no
// value is defined. Identical values produce degenerate breaks.
func Tertiles(variable string, policy model.BreaksPolicy, year int, values []model.Value) (b model.Breaks, ok bool) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if f, def := v.Float(); def {
			sorted = append(sorted, f)
		}
	}
	if len(sorted) == 0 {
		return model.Breaks{Variable: variable, Policy: policy, Year: year}, false
	}
	sort.Float64s(sorted)

	b = model.Breaks{
		Variable: variable,
		Policy:   policy,
		Year:     year,
		Min:      sorted[0],
		Lower:    Quantile(sorted, 1.0/3),
		Upper:    Quantile(sorted, 2.0/3),
		Max:      sorted[len(sorted)-1],
		N:        len(sorted),
	}
	b.Degenerate = b.Min == b.Max
	return b, true
}

// Bin places v into 1, 2 or 3. Undefined values and empty breaks give 0.
// The minimum always lands in bin 1 and the maximum in bin 3; with
// degenerate breaks every value is binned 2.
func Bin(b model.Breaks, v model.Value) int {
	f, ok := v.Float()
	if !ok || b.N == 0 {
		return 0
	}
	switch {
	case b.Degenerate:
		return 2
	case f <= b.Min:
		return 1
	case f >= b.Max:
		return 3
	case f <= b.Lower:
		return 1
	case f <= b.Upper:
		return 2
	}
	return 3
}

// BreaksByYear computes one set of breaks per year. Under the fixed policy
// every year gets the same breaks, computed from all years pooled; under the
// per-year policy each year uses only its own values. Years without a single
// defined value are absent from the result.
func BreaksByYear(variable string, policy model.BreaksPolicy, values map[int][]model.Value) map[int]model.Breaks {
	out := make(map[int]model.Breaks, len(values))
	if policy == model.BreaksFixed {
		var pooled []model.Value
		for _, y := range sortedYears(values) {
			pooled = append(pooled, values[y]...)
		}
		b, ok := Tertiles(variable, policy, 0, pooled)
		if !ok {
			return out
		}
		for y := range values {
			out[y] = b
		}
		return out
	}
	for y, vs := range values {
		if b, ok := Tertiles(variable, model.BreaksPerYear, y, vs); ok {
			out[y] = b
		}
	}
	return out
}

func sortedYears(m map[int][]model.Value) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
