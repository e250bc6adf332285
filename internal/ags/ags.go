// Package ags handles German administrative codes (Amtlicher
// Gemeindeschlüssel and the regional key) and the locale-formatted numbers
// that come with tables keyed by them.
package ags

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Standard code widths.
const (
	WidthLand      = 2
	WidthRegBezirk = 3
	WidthKreis     = 5
	WidthGemeinde  = 8
	WidthRS        = 12
)

// ErrInvalidCode is returned for codes that contain anything but digits after
// cleanup.
var ErrInvalidCode = eris.New("ags: invalid code")

// Normalize cleans raw and left-pads it with zeros to width. Surrounding
// whitespace and quotes are removed, as is a trailing ".0" left behind by
// spreadsheet exports that stored the code as a float. Codes longer than width
// are returned unchanged; use Truncate to coarsen them.
func Normalize(raw string, width int) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	if s == "" {
		return "", eris.Wrap(ErrInvalidCode, "ags: empty code")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", eris.Wrapf(ErrInvalidCode, "ags: %q", raw)
		}
	}
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s, nil
}

// Truncate returns the first width digits of code, i.e. the code of the
// enclosing unit at that level. Shorter codes are returned unchanged.
func Truncate(code string, width int) string {
	if width <= 0 || len(code) <= width {
		return code
	}
	return code[:width]
}

// HasPrefix reports whether code lies inside the unit identified by prefix.
// An empty prefix matches everything.
func HasPrefix(code, prefix string) bool {
	return strings.HasPrefix(code, prefix)
}

// MatchesAny reports whether code has any of prefixes. No prefixes matches
// everything.
func MatchesAny(code string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if HasPrefix(code, p) {
			return true
		}
	}
	return false
}

var standardWidths = []int{WidthLand, WidthRegBezirk, WidthKreis, WidthGemeinde, WidthRS}

// Widen normalizes raw and pads it to the smallest standard width that
// holds it, which restores a leading zero dropped by numeric exports
// ("9162" becomes "09162", "9162000" becomes "09162000").
func Widen(raw string) (string, error) {
	s, err := Normalize(raw, 0)
	if err != nil {
		return "", err
	}
	for _, w := range standardWidths {
		if len(s) <= w {
			return Normalize(s, w)
		}
	}
	return s, nil
}

// Coarsen widens raw and truncates it to width, giving the code of the
// enclosing unit at that level. Codes of a coarser level than width are
// returned widened but otherwise unchanged.
func Coarsen(raw string, width int) (string, error) {
	s, err := Widen(raw)
	if err != nil {
		return "", err
	}
	return Truncate(s, width), nil
}
