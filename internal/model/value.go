// Package model defines the records shared by the aggregation, classification
// and delta stages: districts, stations, per-district metrics and the derived
// bivariate classes.
package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is a scalar that is either defined or explicitly undefined. The zero
// value is undefined, so a forgotten assignment never reads as 0.
type Value struct {
	v  float64
	ok bool
}

// Defined wraps f. NaN and ±Inf are never treated as numbers and yield an
// undefined Value.
func Defined(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{v: f, ok: true}
}

// Undefined returns the explicit missing marker.
func Undefined() Value { return Value{} }

// Float returns the scalar and whether it is defined.
func (v Value) Float() (float64, bool) { return v.v, v.ok }

// IsDefined reports whether v carries a number.
func (v Value) IsDefined() bool { return v.ok }

// String formats the value for tabular output; undefined renders as "NA".
func (v Value) String() string {
	if !v.ok {
		return "NA"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalJSON encodes undefined as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Defined(f)
	return nil
}

// MarshalYAML encodes undefined as null.
func (v Value) MarshalYAML() (any, error) {
	if !v.ok {
		return nil, nil
	}
	return v.v, nil
}
