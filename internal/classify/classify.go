package classify

import (
	"github.com/sells-group/airmap/internal/model"
)

// Classify returns the bivariate class for one district. It is undefined
// when either value is undefined or has no breaks.
func Classify(yb, xb model.Breaks, y, x model.Value) model.Class {
	by, bx := Bin(yb, y), Bin(xb, x)
	if by == 0 || bx == 0 {
		return model.UndefinedClass
	}
	return model.Class{Y: by, X: bx}
}

// Values extracts the scalar of every metric.
func Values(ms []model.PolygonMetric) []model.Value {
	out := make([]model.Value, len(ms))
	for i, m := range ms {
		out[i] = m.Value
	}
	return out
}

// ClassifyYear joins the x and y metrics of one year by district code and
// classifies every district. Districts are returned in the order of xs; a
// district absent from ys gets an undefined y metric.
func ClassifyYear(year int, policy model.BreaksPolicy, yb, xb model.Breaks, ys, xs []model.PolygonMetric) []model.DistrictYear {
	yByCode := make(map[string]model.PolygonMetric, len(ys))
	for _, m := range ys {
		yByCode[m.Code] = m
	}

	out := make([]model.DistrictYear, 0, len(xs))
	for _, x := range xs {
		y, ok := yByCode[x.Code]
		if !ok {
			y = model.MissingMetric(x.Code, year, yb.Variable, model.FlagMissingInput)
		}
		row := model.DistrictYear{
			Code:         x.Code,
			Year:         year,
			X:            x,
			Y:            y,
			Class:        Classify(yb, xb, y.Value, x.Value),
			BreaksPolicy: policy,
		}
		if !row.Class.Defined() {
			row.Flags = append(row.Flags, model.FlagMissingInput)
		}
		if (yb.Degenerate && y.Value.IsDefined()) || (xb.Degenerate && x.Value.IsDefined()) {
			row.Flags = append(row.Flags, model.FlagDegenerateBreaks)
		}
		out = append(out, row)
	}
	return out
}
