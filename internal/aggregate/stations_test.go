package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/spatial"
)

func square(code string, x0, y0, size float64) model.District {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}}})
	return model.District{Code: code, Geometry: mp}
}

func sv(code string, x, y, v float64) model.StationValue {
	return model.StationValue{Station: model.Station{Code: code, Point: geom.Coord{x, y}}, Value: v}
}

func newAggregator(t *testing.T, cfg IDWConfig, districts ...model.District) *StationAggregator {
	t.Helper()
	idx, err := spatial.New(districts)
	require.NoError(t, err)
	a, err := NewStationAggregator(idx, cfg)
	require.NoError(t, err)
	return a
}

func byCode(ms []model.PolygonMetric) map[string]model.PolygonMetric {
	out := make(map[string]model.PolygonMetric, len(ms))
	for _, m := range ms {
		out[m.Code] = m
	}
	return out
}

func TestStationAggregator_ObservedImputedMissing(t *testing.T) {
	a := newAggregator(t, DefaultIDW(),
		square("A", 0, 0, 10),
		square("B", 200, 0, 10),
		square("C", 1000, 0, 10),
	)
	values := []model.StationValue{
		sv("s2", 8, 8, 20),
		sv("s1", 2, 2, 10),
		sv("s3", 215, 5, 30),  // 10 from B's centroid
		sv("s4", 205, 45, 50), // 40 from B's centroid
	}

	got := a.Aggregate(2022, "no2", values)
	require.Len(t, got, 3)
	m := byCode(got)

	obs := m["A"]
	assert.Equal(t, model.ProvenanceObserved, obs.Provenance)
	assert.Equal(t, 2, obs.SourceCount)
	assert.Equal(t, []string{"s1", "s2"}, obs.Sources)
	f, ok := obs.Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 15, f, 1e-12)

	imp := m["B"]
	assert.Equal(t, model.ProvenanceImputed, imp.Provenance)
	assert.Equal(t, 2, imp.SourceCount)
	assert.Equal(t, []string{"s3", "s4"}, imp.Sources)
	f, ok = imp.Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 34, f, 1e-9)
	assert.Greater(t, f, 30.0)
	assert.Less(t, f, 40.0, "closer station dominates")

	gap := m["C"]
	assert.False(t, gap.Value.IsDefined())
	assert.Equal(t, model.ProvenanceMissing, gap.Provenance)
	assert.True(t, gap.HasFlag(model.FlagCoverageGap))
	assert.Equal(t, 2022, gap.Year)
	assert.Equal(t, "no2", gap.Variable)
}

func TestStationAggregator_NoValues(t *testing.T) {
	a := newAggregator(t, DefaultIDW(), square("B", 200, 0, 10), square("A", 0, 0, 10))

	got := a.Aggregate(2023, "no2", nil)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Code)
	assert.Equal(t, "B", got[1].Code)
	for _, m := range got {
		assert.False(t, m.Value.IsDefined())
		assert.Equal(t, model.ProvenanceMissing, m.Provenance)
		assert.True(t, m.HasFlag(model.FlagCoverageGap))
		assert.Equal(t, 2023, m.Year)
	}
}

func TestStationAggregator_IDWIsConvex(t *testing.T) {
	a := newAggregator(t, DefaultIDW(), square("A", 0, 0, 10))
	values := []model.StationValue{
		sv("s1", 20, 5, 12),
		sv("s2", 5, 40, 3),
		sv("s3", -30, 5, 40),
		sv("s4", 5, -60, 7),
	}
	got := a.Aggregate(2020, "no2", values)
	require.Len(t, got, 1)
	f, ok := got[0].Value.Float()
	require.True(t, ok)
	assert.GreaterOrEqual(t, f, 3.0)
	assert.LessOrEqual(t, f, 40.0)
	assert.Equal(t, model.ProvenanceImputed, got[0].Provenance)
}

func TestStationAggregator_KLimitAndTies(t *testing.T) {
	cfg := IDWConfig{K: 2, Radius: 80, MinDistance: 1}
	a := newAggregator(t, cfg, square("A", 0, 0, 10))
	values := []model.StationValue{
		sv("c", 25, 5, 100), // 20
		sv("b", 5, 25, 10),  // 20
		sv("a", -15, 5, 20), // 20
		sv("z", 5, 75, 1),   // 70
	}
	got := a.Aggregate(2020, "no2", values)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b"}, got[0].Sources)
	f, _ := got[0].Value.Float()
	assert.InDelta(t, 15, f, 1e-9)
}

func TestStationAggregator_MinDistanceClip(t *testing.T) {
	// Neither station is inside B; distances to the centroid are 5.25 and 9.
	a := newAggregator(t, DefaultIDW(), square("B", 0, 0, 10))
	values := []model.StationValue{
		sv("near", 5, 10.25, 10), // outside B, 5.25 from centroid
		sv("far", 5, 14, 30),     // 9 from centroid
	}
	got := a.Aggregate(2020, "no2", values)
	f, ok := got[0].Value.Float()
	require.True(t, ok)
	want := (10/5.25 + 30/9.0) / (1/5.25 + 1/9.0)
	assert.InDelta(t, want, f, 1e-9)

	clip := newAggregator(t, IDWConfig{K: 5, Radius: 80, MinDistance: 6}, square("B", 0, 0, 10))
	got = clip.Aggregate(2020, "no2", values)
	f, _ = got[0].Value.Float()
	want = (10/6.0 + 30/9.0) / (1/6.0 + 1/9.0)
	assert.InDelta(t, want, f, 1e-9)
}

func TestIDWConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  IDWConfig
	}{
		{"zero k", IDWConfig{K: 0, Radius: 80, MinDistance: 1}},
		{"zero radius", IDWConfig{K: 5, Radius: 0, MinDistance: 1}},
		{"negative epsilon", IDWConfig{K: 5, Radius: 80, MinDistance: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, model.IsConfigError(err))
		})
	}
	assert.NoError(t, DefaultIDW().Validate())
}
