package crs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/airmap/internal/model"
)

func TestLookup(t *testing.T) {
	c, err := Lookup(ETRS89UTM32N)
	require.NoError(t, err)
	assert.Equal(t, 32, c.Zone)
	assert.True(t, c.Planar)
	assert.Equal(t, "ETRS89 / UTM zone 32N", c.Name)

	_, err = Lookup(0)
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))

	_, err = Lookup(31468)
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))
}

func TestRequireProjected(t *testing.T) {
	tests := []struct {
		name string
		epsg int
		ok   bool
	}{
		{"utm32 etrs89", 25832, true},
		{"utm33 wgs84", 32633, true},
		{"geographic", WGS84, false},
		{"web mercator", WebMercator, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RequireProjected(tt.epsg)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, model.IsConfigError(err))
		})
	}
}

func TestTransformer_MarienplatzUTM32(t *testing.T) {
	tr, err := NewTransformer(WGS84, ETRS89UTM32N)
	require.NoError(t, err)
	assert.False(t, tr.Identity())

	x, y, err := tr.Forward(11.5755, 48.1374)
	require.NoError(t, err)
	assert.InDelta(t, 691603.03, x, 0.5)
	assert.InDelta(t, 5334780.03, y, 0.5)
}

func TestTransformer_CentralMeridian(t *testing.T) {
	tr, err := NewTransformer(ETRS89, ETRS89UTM32N)
	require.NoError(t, err)

	forward := func(lon, lat float64) (float64, float64) {
		x, y, err := tr.Forward(lon, lat)
		require.NoError(t, err)
		return x, y
	}

	x, y := forward(9, 48)
	assert.InDelta(t, 500000, x, 1e-3)
	assert.InDelta(t, 5316300.22, y, 0.5)

	x, y = forward(9, 0)
	assert.InDelta(t, 500000, x, 1e-3)
	assert.InDelta(t, 0, y, 1e-3)

	// Symmetric about the central meridian.
	xe, ye := forward(10.5, 49)
	xw, yw := forward(7.5, 49)
	assert.InDelta(t, 500000-xw, xe-500000, 1e-3)
	assert.InDelta(t, ye, yw, 1e-3)
}

func TestTransformer_DistanceMatchesGreatCircle(t *testing.T) {
	tr, err := NewTransformer(WGS84, ETRS89UTM32N)
	require.NoError(t, err)

	a, err := tr.Coord(geom.Coord{11.5755, 48.1374}) // Munich
	require.NoError(t, err)
	b, err := tr.Coord(geom.Coord{12.0977, 49.0134}) // Regensburg
	require.NoError(t, err)
	planar := math.Hypot(a[0]-b[0], a[1]-b[1])

	assert.InEpsilon(t, 104708.8, planar, 0.002)
}

func TestTransformer_Identity(t *testing.T) {
	tr, err := NewTransformer(ETRS89UTM32N, ETRS89UTM32N)
	require.NoError(t, err)
	assert.True(t, tr.Identity())

	flat := []float64{1, 2, 3, 4}
	require.NoError(t, tr.FlatCoords(flat, 2))
	assert.Equal(t, []float64{1, 2, 3, 4}, flat)
}

func TestTransformer_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
	}{
		{"geographic target", WGS84, WGS84},
		{"web mercator target", WGS84, WebMercator},
		{"unknown source", 31468, ETRS89UTM32N},
		{"missing source", 0, ETRS89UTM32N},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransformer(tt.from, tt.to)
			require.Error(t, err)
			assert.True(t, model.IsConfigError(err))
		})
	}
}

func TestTransformer_BetweenZones(t *testing.T) {
	// A point on the zone 33 central meridian lies about 3 degrees east of
	// the zone 32 one.
	toZone33, err := NewTransformer(WGS84, 32633)
	require.NoError(t, err)
	x33, y33, err := toZone33.Forward(15, 50)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x33, 1e-3)

	tr, err := NewTransformer(32633, ETRS89UTM32N)
	require.NoError(t, err)
	assert.False(t, tr.Identity())

	x, y, err := tr.Forward(x33, y33)
	require.NoError(t, err)
	direct, err := NewTransformer(WGS84, ETRS89UTM32N)
	require.NoError(t, err)
	wantX, wantY, err := direct.Forward(15, 50)
	require.NoError(t, err)
	assert.InDelta(t, wantX, x, 0.5)
	assert.InDelta(t, wantY, y, 0.5)
	assert.Greater(t, x, 900000.0)
}

func TestTransformer_FlatCoords(t *testing.T) {
	tr, err := NewTransformer(WGS84, ETRS89UTM32N)
	require.NoError(t, err)

	flat := []float64{9, 48, 9, 0}
	require.NoError(t, tr.FlatCoords(flat, 2))
	assert.InDelta(t, 500000, flat[0], 1e-3)
	assert.InDelta(t, 0, flat[3], 1e-3)
}
