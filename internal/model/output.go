package model

// DistrictYear is one row of the per-year output: both aggregated variables
// of a district, their class and the breaks policy the class was derived
// with.
type DistrictYear struct {
	Code         string        `json:"code"`
	Year         int           `json:"year"`
	X            PolygonMetric `json:"x"`
	Y            PolygonMetric `json:"y"`
	Class        Class         `json:"class"`
	BreaksPolicy BreaksPolicy  `json:"breaks_policy"`
	Flags        []Flag        `json:"flags,omitempty"`
}

// HasFlag reports whether f is set on the row.
func (d DistrictYear) HasFlag(f Flag) bool {
	return hasFlag(d.Flags, f)
}

// DistrictDelta is one row of the delta output.
type DistrictDelta struct {
	Code   string      `json:"code"`
	X      DeltaRecord `json:"x"`
	Y      DeltaRecord `json:"y"`
	Class  DeltaClass  `json:"class"`
	Policy string      `json:"policy"`
}
