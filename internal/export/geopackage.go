package export

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/airmap/internal/gpkg"
)

// WriteGeoPackage writes one layer per year ("districts_<year>") and a
// "deltas" layer into a new GeoPackage at path.
func (w *Writer) WriteGeoPackage(ctx context.Context, path string, set resultSet) (string, error) {
	db, err := gpkg.Create(ctx, path)
	if err != nil {
		return "", err
	}
	defer db.Close() //nolint:errcheck

	for _, y := range set.years {
		fc := w.YearFeatures(set.xName, set.yName, y.Rows)
		layer := gpkg.Layer{
			Name:         fmt.Sprintf("districts_%d", y.Year),
			SRSID:        w.opts.EPSG,
			GeometryType: "MULTIPOLYGON",
			Fields:       fieldsFor(yearColumns(set.xName, set.yName), set.xName, set.yName),
		}
		features := make([]gpkg.Feature, len(fc.Features))
		for i, f := range fc.Features {
			features[i] = gpkg.Feature{Geometry: f.Geometry, Properties: f.Properties}
			features[i].Properties["indicator_year"] = nullableYear(y.IndicatorYear)
		}
		if err := db.WriteLayer(ctx, layer, features); err != nil {
			return "", eris.Wrapf(err, "export: gpkg layer %s", layer.Name)
		}
	}

	if len(set.deltas) > 0 {
		fc := w.DeltaFeatures(set.xName, set.yName, set.deltas)
		layer := gpkg.Layer{
			Name:         "deltas",
			SRSID:        w.opts.EPSG,
			GeometryType: "MULTIPOLYGON",
			Fields:       fieldsFor(deltaColumns(set.xName, set.yName), set.xName, set.yName),
		}
		features := make([]gpkg.Feature, len(fc.Features))
		for i, f := range fc.Features {
			features[i] = gpkg.Feature{Geometry: f.Geometry, Properties: f.Properties}
		}
		if err := db.WriteLayer(ctx, layer, features); err != nil {
			return "", eris.Wrap(err, "export: gpkg layer deltas")
		}
	}

	if err := db.Close(); err != nil {
		return "", eris.Wrap(err, "export: close gpkg")
	}
	return path, nil
}

func nullableYear(y int) any {
	if y == 0 {
		return nil
	}
	return y
}

// fieldsFor types the output columns: values and deltas are REAL, bins,
// years and counts INTEGER, everything else TEXT.
func fieldsFor(columns []string, xName, yName string) []gpkg.Field {
	reals := map[string]bool{xName: true, yName: true}
	for _, v := range []string{xName, yName} {
		for _, s := range []string{"_first", "_last", "_abs_delta", "_pct_delta"} {
			reals[v+s] = true
		}
	}
	integer := map[string]bool{
		"year": true, "indicator_year": true, "y_bin": true, "x_bin": true,
		xName + "_sources": true, yName + "_sources": true,
	}

	fields := make([]gpkg.Field, len(columns))
	for i, c := range columns {
		t := "TEXT"
		switch {
		case reals[c]:
			t = "REAL"
		case integer[c]:
			t = "INTEGER"
		}
		fields[i] = gpkg.Field{Name: c, Type: t}
	}
	return fields
}
