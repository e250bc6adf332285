package uba

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// asRow decodes a data row. The API delivers rows either as JSON arrays or
// as objects keyed "0", "1", ...
func asRow(raw json.RawMessage) ([]any, error) {
	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, eris.Wrap(err, "uba: row is neither array nor object")
	}
	row := make([]any, len(obj))
	for i := range row {
		v, ok := obj[strconv.Itoa(i)]
		if !ok {
			return nil, eris.Errorf("uba: row object lacks key %q", strconv.Itoa(i))
		}
		row[i] = v
	}
	return row, nil
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// indexOf finds a column by name in the response's "indices" list.
func indexOf(indices []string, name string, fallback int) int {
	for i, n := range indices {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return i
		}
	}
	return fallback
}
