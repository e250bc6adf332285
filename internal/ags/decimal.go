package ags

import (
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/airmap/internal/model"
)

// missingMarkers are the placeholders statistical offices use for "no value".
var missingMarkers = map[string]bool{
	"":     true,
	"-":    true,
	"–":    true,
	".":    true,
	"x":    true,
	"X":    true,
	"...":  true,
	"…":    true,
	"NA":   true,
	"n.a.": true,
	"nan":  true,
	"NaN":  true,
}

// ParseDecimal parses a number written in either German ("1.234,5") or
// native ("1234.5") notation. Missing markers yield an undefined value and no
// error; anything else that is not a finite number is an error.
//
// A lone dot is read as a decimal point, several dots as thousands separators.
// When both separators appear the one that comes last is the decimal mark.
func ParseDecimal(raw string) (model.Value, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", ""))
	if missingMarkers[s] {
		return model.Undefined(), nil
	}
	s = strings.ReplaceAll(s, " ", "")

	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return model.Undefined(), eris.Errorf("ags: ambiguous number %q", raw)
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return model.Undefined(), eris.Wrapf(err, "ags: parse number %q", raw)
	}
	if d.Form != apd.Finite {
		return model.Undefined(), eris.Errorf("ags: non-finite number %q", raw)
	}
	f, err := d.Float64()
	if err != nil {
		return model.Undefined(), eris.Wrapf(err, "ags: convert number %q", raw)
	}
	return model.Defined(f), nil
}
