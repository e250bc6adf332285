package ags

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		width int
		want  string
	}{
		{"already padded", "09162", WidthKreis, "09162"},
		{"lost leading zero", "9162", WidthKreis, "09162"},
		{"float export", "9162.0", WidthKreis, "09162"},
		{"quoted with spaces", ` "09362" `, WidthKreis, "09362"},
		{"gemeinde", "9162000", WidthGemeinde, "09162000"},
		{"longer than width", "09162000", WidthKreis, "09162000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.width)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, raw := range []string{"", "  ", "09A62", "DE212"} {
		_, err := Normalize(raw, WidthKreis)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrInvalidCode), raw)
	}
}

func TestWidenAndCoarsen(t *testing.T) {
	tests := []struct {
		raw     string
		widened string
		kreis   string
	}{
		{"9", "09", "09"},
		{"093", "093", "093"},
		{"9162", "09162", "09162"},
		{"9162000.0", "09162000", "09162"},
		{"091620000000", "091620000000", "09162"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Widen(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.widened, got)

			got, err = Coarsen(tt.raw, WidthKreis)
			require.NoError(t, err)
			assert.Equal(t, tt.kreis, got)
		})
	}

	_, err := Coarsen("n/a", WidthKreis)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "09162", Truncate("09162000", WidthKreis))
	assert.Equal(t, "093", Truncate("09362", WidthRegBezirk))
	assert.Equal(t, "09", Truncate("09", WidthKreis))
	assert.Equal(t, "09162", Truncate("09162", 0))
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, MatchesAny("09362", nil))
	assert.True(t, MatchesAny("09362", []string{"08", "093"}))
	assert.False(t, MatchesAny("09162", []string{"093"}))
	assert.True(t, HasPrefix("09162", ""))
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"12,49", 12.49},
		{"1.234,5", 1234.5},
		{"1234.5", 1234.5},
		{"1,234.5", 1234.5},
		{"1.234.567", 1234567},
		{"-3,0", -3},
		{" 42 ", 42},
		{"1 234,5", 1234.5},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := ParseDecimal(tt.raw)
			require.NoError(t, err)
			f, ok := v.Float()
			require.True(t, ok)
			assert.InDelta(t, tt.want, f, 1e-9)
		})
	}
}

func TestParseDecimal_MissingMarkers(t *testing.T) {
	for _, raw := range []string{"", "-", ".", "x", "NA", "  "} {
		v, err := ParseDecimal(raw)
		require.NoError(t, err, raw)
		assert.False(t, v.IsDefined(), raw)
	}
}

func TestParseDecimal_Invalid(t *testing.T) {
	for _, raw := range []string{"abc", "1,2,3", "Infinity", "NaN%"} {
		v, err := ParseDecimal(raw)
		assert.Error(t, err, raw)
		assert.False(t, v.IsDefined(), raw)
	}
}
