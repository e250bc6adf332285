package model

// Provenance records where a district-level value came from.
type Provenance string

const (
	// ProvenanceObserved is a mean of stations inside the district (or of the
	// finer units under its code).
	ProvenanceObserved Provenance = "observed"
	// ProvenanceImputed is an inverse-distance-weighted estimate.
	ProvenanceImputed Provenance = "imputed"
	// ProvenanceMissing marks a value that could not be produced.
	ProvenanceMissing Provenance = "missing"
)

// Flag marks a recoverable condition on a single output record.
type Flag string

const (
	FlagCoverageGap      Flag = "coverage_gap"
	FlagDegenerateBreaks Flag = "degenerate_breaks"
	FlagZeroDivision     Flag = "zero_division"
	FlagMissingInput     Flag = "missing_input"
	FlagYearFailed       Flag = "year_failed"
)

// PolygonMetric is one (district, year, variable) scalar with its provenance.
// SourceCount is the number of stations (or finer administrative units) that
// contributed; Sources lists station codes for imputed values.
type PolygonMetric struct {
	Code        string     `json:"code"`
	Year        int        `json:"year"`
	Variable    string     `json:"variable"`
	Value       Value      `json:"value"`
	Provenance  Provenance `json:"provenance"`
	SourceCount int        `json:"source_count"`
	Sources     []string   `json:"sources,omitempty"`
	Flags       []Flag     `json:"flags,omitempty"`
}

// HasFlag reports whether f is set on m.
func (m PolygonMetric) HasFlag(f Flag) bool {
	return hasFlag(m.Flags, f)
}

// MissingMetric returns an undefined metric for code carrying flag.
func MissingMetric(code string, year int, variable string, flag Flag) PolygonMetric {
	return PolygonMetric{
		Code:       code,
		Year:       year,
		Variable:   variable,
		Value:      Undefined(),
		Provenance: ProvenanceMissing,
		Flags:      []Flag{flag},
	}
}

func hasFlag(flags []Flag, f Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}
