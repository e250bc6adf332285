package model

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
)

// BreaksPolicy selects how tertile breakpoints are scoped.
type BreaksPolicy string

const (
	// BreaksPerYear computes breakpoints independently for every year.
	BreaksPerYear BreaksPolicy = "per_year"
	// BreaksFixed computes breakpoints once from all years pooled.
	BreaksFixed BreaksPolicy = "fixed"
	// BreaksDeltaTertile tags breaks computed over first-to-last deltas. It
	// is not a configurable level policy.
	BreaksDeltaTertile BreaksPolicy = "delta_tertile"
)

// ParseBreaksPolicy validates a configured policy name.
func ParseBreaksPolicy(s string) (BreaksPolicy, error) {
	switch BreaksPolicy(s) {
	case BreaksPerYear, BreaksFixed:
		return BreaksPolicy(s), nil
	case "":
		return BreaksPerYear, nil
	}
	return "", NewConfigError("breaks policy", "unknown policy %q (want %q or %q)", s, BreaksPerYear, BreaksFixed)
}

// Breaks holds the tertile breakpoints for one variable. Year is zero when the
// breaks were pooled across years. Degenerate is set when every input value
// was identical; N is the number of values the breaks were computed from.
type Breaks struct {
	Variable   string       `json:"variable" yaml:"variable"`
	Policy     BreaksPolicy `json:"policy" yaml:"policy"`
	Year       int          `json:"year,omitempty" yaml:"year,omitempty"`
	Min        float64      `json:"min" yaml:"min"`
	Lower      float64      `json:"lower" yaml:"lower"`
	Upper      float64      `json:"upper" yaml:"upper"`
	Max        float64      `json:"max" yaml:"max"`
	N          int          `json:"n" yaml:"n"`
	Degenerate bool         `json:"degenerate,omitempty" yaml:"degenerate,omitempty"`
}

// Validate checks that the breakpoints are non-decreasing.
func (b Breaks) Validate() error {
	if b.N == 0 {
		return eris.Errorf("model: breaks for %s have no values", b.Variable)
	}
	if !(b.Min <= b.Lower && b.Lower <= b.Upper && b.Upper <= b.Max) {
		return eris.Errorf("model: breaks for %s are not non-decreasing: %g, %g, %g, %g",
			b.Variable, b.Min, b.Lower, b.Upper, b.Max)
	}
	return nil
}

// Class is a bivariate 3x3 class. A zero bin on either axis means the class is
// undefined for that district-year.
type Class struct {
	Y int `json:"y_bin"`
	X int `json:"x_bin"`
}

// UndefinedClass is returned whenever an input variable is missing.
var UndefinedClass = Class{}

// Defined reports whether both bins are set.
func (c Class) Defined() bool { return c.Y > 0 && c.X > 0 }

// Label renders the class as "y-x", or "" when undefined.
func (c Class) Label() string {
	if !c.Defined() {
		return ""
	}
	return fmt.Sprintf("%d-%d", c.Y, c.X)
}

// MarshalJSON encodes the class as its label, or null when undefined.
func (c Class) MarshalJSON() ([]byte, error) {
	if !c.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(c.Label())
}

// Direction is the delta class of one variable.
type Direction int

const (
	DirectionUndefined Direction = iota
	DirectionDecrease
	DirectionStable
	DirectionIncrease
)

func (d Direction) String() string {
	switch d {
	case DirectionDecrease:
		return "decrease"
	case DirectionStable:
		return "stable"
	case DirectionIncrease:
		return "increase"
	}
	return "undefined"
}

// MarshalJSON encodes the direction name, or null when undefined.
func (d Direction) MarshalJSON() ([]byte, error) {
	if d == DirectionUndefined {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// DeltaRecord is the first-to-last change of one variable for one district.
// Percent is undefined when First is zero.
type DeltaRecord struct {
	Code      string    `json:"code"`
	Variable  string    `json:"variable"`
	First     Value     `json:"first"`
	Last      Value     `json:"last"`
	Absolute  Value     `json:"absolute_delta"`
	Percent   Value     `json:"percent_delta"`
	Direction Direction `json:"direction"`
	Flags     []Flag    `json:"flags,omitempty"`
}

// HasFlag reports whether f is set on r.
func (r DeltaRecord) HasFlag(f Flag) bool {
	return hasFlag(r.Flags, f)
}

// DeltaClass pairs the directions of the two variables of a district.
type DeltaClass struct {
	Y Direction `json:"y_direction"`
	X Direction `json:"x_direction"`
}

// Defined reports whether both directions are set.
func (c DeltaClass) Defined() bool {
	return c.Y != DirectionUndefined && c.X != DirectionUndefined
}

// Label renders "y-x" using 1 for decrease, 2 for stable and 3 for increase,
// matching the level class layout. Undefined classes render as "".
func (c DeltaClass) Label() string {
	if !c.Defined() {
		return ""
	}
	return fmt.Sprintf("%d-%d", int(c.Y), int(c.X))
}
