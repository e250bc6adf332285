package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/airmap/internal/model"
)

func row(code string, year int, v float64) model.IndicatorValue {
	return model.IndicatorValue{Code: code, Year: year, Value: model.Defined(v)}
}

func TestIndicatorAggregator_PrefixMean(t *testing.T) {
	codes := []string{"09162", "09362", "09373"}
	rows := []model.IndicatorValue{
		row("09162000", 2022, 10),
		row("09362000", 2022, 4),
		row("09362111", 2022, 8),
		{Code: "09362222", Year: 2022, Value: model.Undefined()},
		row("09362000", 2021, 100),
		row("08111000", 2022, 999),
	}
	a, err := NewIndicatorAggregator(codes, rows)
	require.NoError(t, err)
	assert.Equal(t, []int{2021, 2022}, a.Years())
	assert.True(t, a.HasYear(2022))
	assert.False(t, a.HasYear(2019))

	got := a.Aggregate(2022, "commute")
	require.Len(t, got, 3)

	assert.Equal(t, "09162", got[0].Code)
	f, ok := got[0].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 10, f, 1e-12)
	assert.Equal(t, 1, got[0].SourceCount)

	f, ok = got[1].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 6, f, 1e-12, "undefined rows are ignored")
	assert.Equal(t, 2, got[1].SourceCount)
	assert.Equal(t, model.ProvenanceObserved, got[1].Provenance)

	assert.False(t, got[2].Value.IsDefined())
	assert.True(t, got[2].HasFlag(model.FlagMissingInput))
	assert.Equal(t, "commute", got[2].Variable)
}

func TestIndicatorAggregator_SameLevelCodes(t *testing.T) {
	a, err := NewIndicatorAggregator([]string{"09162"}, []model.IndicatorValue{row("09162", 2020, 3.5)})
	require.NoError(t, err)
	got := a.Aggregate(2020, "commute")
	f, ok := got[0].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 3.5, f, 1e-12)
}

func TestIndicatorAggregator_AggregateFrom(t *testing.T) {
	a, err := NewIndicatorAggregator([]string{"09162"}, []model.IndicatorValue{row("09162000", 2021, 7)})
	require.NoError(t, err)

	got := a.AggregateFrom(2023, 2021, "commute")
	require.Len(t, got, 1)
	assert.Equal(t, 2023, got[0].Year)
	f, ok := got[0].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 7, f, 1e-12)

	missing := a.Aggregate(2023, "commute")
	assert.False(t, missing[0].Value.IsDefined())
}

func TestIndicatorAggregator_ZeroJoinsIsConfigError(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		rows  []model.IndicatorValue
	}{
		{"wrong land", []string{"09162"}, []model.IndicatorValue{row("08111000", 2022, 1)}},
		{"codes lost leading zero", []string{"09162"}, []model.IndicatorValue{row("9162000", 2022, 1)}},
		{"coarser indicator", []string{"09162"}, []model.IndicatorValue{row("091", 2022, 1)}},
		{"empty table", []string{"09162"}, nil},
		{"no districts", nil, []model.IndicatorValue{row("09162000", 2022, 1)}},
		{"mixed widths", []string{"09162", "093"}, []model.IndicatorValue{row("09162000", 2022, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndicatorAggregator(tt.codes, tt.rows)
			require.Error(t, err)
			assert.True(t, model.IsConfigError(err))
		})
	}
}
