package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/airmap/internal/gpkg"
	"github.com/sells-group/airmap/internal/model"
)

func kreisOptions() DistrictOptions {
	return DistrictOptions{
		CodeFields:  []string{"AGS5", "ags", "rs"},
		NameFields:  []string{"GEN"},
		CodeWidth:   5,
		TargetEPSG:  25832,
		LevelField:  "art",
		LevelValues: []string{"Landkreis", "Kreisfreie Stadt"},
		Prefixes:    []string{"09"},
	}
}

const kreiseGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"ags": "09162000", "GEN": "München", "art": "Kreisfreie Stadt"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]],[[2,2],[4,2],[4,4],[2,4],[2,2]]]}},
    {"type": "Feature", "properties": {"ags": 9362000, "GEN": "Regensburg", "art": "Kreisfreie Stadt"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[10,0],[20,0],[20,10],[10,10],[10,0]]]]}},
    {"type": "Feature", "properties": {"ags": "09162000", "GEN": "München (Duplikat)", "art": "Kreisfreie Stadt"},
     "geometry": {"type": "Polygon", "coordinates": [[[50,50],[60,50],[60,60],[50,60],[50,50]]]}},
    {"type": "Feature", "properties": {"ags": "08111000", "GEN": "Stuttgart", "art": "Stadtkreis"},
     "geometry": {"type": "Polygon", "coordinates": [[[30,0],[40,0],[40,10],[30,10],[30,0]]]}},
    {"type": "Feature", "properties": {"ags": "09188000", "GEN": "Starnberg", "art": "Gemeinde"},
     "geometry": {"type": "Polygon", "coordinates": [[[30,0],[40,0],[40,10],[30,10],[30,0]]]}},
    {"type": "Feature", "properties": {"ags": "09189000", "GEN": "Traunstein", "art": "Landkreis"},
     "geometry": null}
  ]
}`

func TestReadGeoJSONDistricts(t *testing.T) {
	got, err := ReadGeoJSONDistricts(strings.NewReader(kreiseGeoJSON), kreisOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "09162", got[0].Code)
	assert.Equal(t, "München", got[0].Name, "first duplicate wins")
	assert.InDelta(t, 96, got[0].Geometry.Area(), 1e-9, "hole is kept")

	assert.Equal(t, "09362", got[1].Code, "numeric code regains its leading zero")
	assert.Equal(t, "Regensburg", got[1].Name)
}

func TestReadGeoJSONDistricts_NoCodeField(t *testing.T) {
	opts := kreisOptions()
	opts.CodeFields = []string{"KREIS"}
	opts.LevelField = ""

	_, err := ReadGeoJSONDistricts(strings.NewReader(kreiseGeoJSON), opts)
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))
}

func TestReadGeoJSONDistricts_UnknownCRS(t *testing.T) {
	opts := kreisOptions()
	opts.TargetEPSG = 4326

	_, err := ReadGeoJSONDistricts(strings.NewReader(kreiseGeoJSON), opts)
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err), "geographic district CRS is rejected")
}

func writeShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "VerwaltungsEinheit.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("rs", 12),
		shp.StringField("GEN", 40),
		shp.StringField("art", 20),
	}))

	// shell clockwise, hole counter-clockwise
	withHole := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
	}))
	twoParts := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0}},
		{{X: 30, Y: 0}, {X: 30, Y: 5}, {X: 35, Y: 5}, {X: 35, Y: 0}, {X: 30, Y: 0}},
	}))

	for _, rec := range []struct {
		poly  *shp.Polygon
		attrs []string
	}{
		{&withHole, []string{"091620000000", "München", "Kreisfreie Stadt"}},
		{&twoParts, []string{"093750000000", "Regensburg", "Landkreis"}},
	} {
		n := int(w.Write(rec.poly))
		for i, a := range rec.attrs {
			require.NoError(t, w.WriteAttribute(n, i, a))
		}
	}
	w.Close()

	// Some go-shp releases name the attribute file "<base>dbf".
	base := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	_, err = os.Stat(base + ".dbf")
	require.NoError(t, err)
	return path
}

func TestReadShapefileDistricts(t *testing.T) {
	path := writeShapefile(t, t.TempDir())

	got, err := ReadShapefileDistricts(path, kreisOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "09162", got[0].Code)
	assert.Equal(t, 1, got[0].Geometry.NumPolygons())
	assert.Equal(t, 2, got[0].Geometry.Polygon(0).NumLinearRings())
	assert.InDelta(t, 96, got[0].Geometry.Area(), 1e-9)

	assert.Equal(t, "09375", got[1].Code)
	assert.Equal(t, 2, got[1].Geometry.NumPolygons())
	assert.InDelta(t, 50, got[1].Geometry.Area(), 1e-9)
	assert.Equal(t, "Regensburg", got[1].Name, "attributes come from the .dbf")

	opts := kreisOptions()
	opts.LevelValues = []string{"Landkreis"}
	only, err := ReadShapefileDistricts(path, opts)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "09375", only[0].Code)
}

func TestToMultiPolygon_Orientation(t *testing.T) {
	ccwShell := []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}
	cwShell := []float64{0, 0, 0, 10, 10, 10, 10, 0, 0, 0}
	ccwHole := []float64{2, 2, 4, 2, 4, 4, 2, 4, 2, 2}
	cwHole := []float64{2, 2, 2, 4, 4, 4, 4, 2, 2, 2}

	tests := []struct {
		name        string
		shell, hole []float64
	}{
		{"ccw shell ccw hole", ccwShell, ccwHole},
		{"cw shell ccw hole", cwShell, ccwHole},
		{"cw shell cw hole", cwShell, cwHole},
		{"ccw shell cw hole", ccwShell, cwHole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat := append(append([]float64(nil), tt.shell...), tt.hole...)
			poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(tt.shell), len(flat)})

			mp, err := toMultiPolygon(poly)
			require.NoError(t, err)
			assert.InDelta(t, 96, mp.Area(), 1e-9)
			assert.InDelta(t, 96, mp.Polygon(0).Area(), 1e-9)
			assert.Equal(t, flat, poly.FlatCoords(), "input is not modified")
		})
	}
}

func TestReadDistricts_Zip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "kreise.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("kreise/readme.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("boundaries"))
	w, err = zw.Create("kreise/kreise.geojson")
	require.NoError(t, err)
	_, err = w.Write([]byte(kreiseGeoJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	got, err := ReadDistricts(context.Background(), zipPath, kreisOptions())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadDistricts_UnsupportedFormat(t *testing.T) {
	_, err := ReadDistricts(context.Background(), "kreise.kml", kreisOptions())
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))
}

func TestReadGeoPackageDistricts_Reprojects(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kreise.gpkg")
	db, err := gpkg.Create(ctx, path)
	require.NoError(t, err)

	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{11.5755, 48.1374}, {11.6, 48.1374}, {11.6, 48.16}, {11.5755, 48.16}, {11.5755, 48.1374},
	}}})
	require.NoError(t, db.WriteLayer(ctx, gpkg.Layer{
		Name: "kreise", SRSID: 4326, GeometryType: "MULTIPOLYGON",
		Fields: []gpkg.Field{{Name: "AGS5", Type: "TEXT"}},
	}, []gpkg.Feature{{Geometry: mp, Properties: map[string]any{"AGS5": "09162"}}}))
	require.NoError(t, db.Close())

	opts := kreisOptions()
	opts.LevelField = ""
	got, err := ReadGeoPackageDistricts(ctx, path, opts)
	require.NoError(t, err)
	require.Len(t, got, 1)

	first := got[0].Geometry.Polygon(0).LinearRing(0).Coord(0)
	assert.InDelta(t, 691603.03, first[0], 0.5)
	assert.InDelta(t, 5334780.03, first[1], 0.5)
}
