package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/airmap/internal/model"
)

// geometry returns the district geometry, or an untyped nil when unknown.
func (w *Writer) geometry(code string) geom.T {
	d, ok := w.districts[code]
	if !ok || d.Geometry == nil {
		return nil
	}
	return d.Geometry
}

func (w *Writer) writeGeoJSONs(dir string, set resultSet) ([]string, error) {
	var written []string
	for _, y := range set.years {
		path := filepath.Join(dir, fmt.Sprintf("districts_%d.geojson", y.Year))
		fc := w.YearFeatures(set.xName, set.yName, y.Rows)
		if err := writeFeatureCollection(path, fc); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if len(set.deltas) > 0 {
		path := filepath.Join(dir, "deltas.geojson")
		if err := writeFeatureCollection(path, w.DeltaFeatures(set.xName, set.yName, set.deltas)); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// YearFeatures builds one feature per row, keyed by district code.
func (w *Writer) YearFeatures(xName, yName string, rows []model.DistrictYear) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(rows))}
	for _, r := range rows {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         r.Code,
			Geometry:   w.geometry(r.Code),
			Properties: w.yearProperties(xName, yName, r),
		})
	}
	return fc
}

func (w *Writer) yearProperties(xName, yName string, r model.DistrictYear) map[string]any {
	props := map[string]any{
		"code":                r.Code,
		"name":                w.name(r.Code),
		"year":                r.Year,
		xName:                 valueAny(r.X.Value),
		xName + "_provenance": string(r.X.Provenance),
		xName + "_sources":    r.X.SourceCount,
		yName:                 valueAny(r.Y.Value),
		yName + "_provenance": string(r.Y.Provenance),
		yName + "_sources":    r.Y.SourceCount,
		"group":               nil,
		"y_bin":               nil,
		"x_bin":               nil,
		"breaks_policy":       string(r.BreaksPolicy),
		"flags":               flagList(rowFlags(r)),
	}
	if r.Class.Defined() {
		props["group"] = r.Class.Label()
		props["y_bin"] = r.Class.Y
		props["x_bin"] = r.Class.X
	}
	return props
}

// DeltaFeatures builds one feature per delta row.
func (w *Writer) DeltaFeatures(xName, yName string, deltas []model.DistrictDelta) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(deltas))}
	for _, d := range deltas {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         d.Code,
			Geometry:   w.geometry(d.Code),
			Properties: w.deltaProperties(xName, yName, d),
		})
	}
	return fc
}

func (w *Writer) deltaProperties(xName, yName string, d model.DistrictDelta) map[string]any {
	props := map[string]any{
		"code":         d.Code,
		"name":         w.name(d.Code),
		"delta_group":  nil,
		"delta_policy": d.Policy,
		"flags":        flagList(deltaFlags(d)),
	}
	for _, p := range []struct {
		name string
		rec  model.DeltaRecord
	}{{xName, d.X}, {yName, d.Y}} {
		props[p.name+"_first"] = valueAny(p.rec.First)
		props[p.name+"_last"] = valueAny(p.rec.Last)
		props[p.name+"_abs_delta"] = valueAny(p.rec.Absolute)
		props[p.name+"_pct_delta"] = valueAny(p.rec.Percent)
		props[p.name+"_direction"] = nil
		if p.rec.Direction != model.DirectionUndefined {
			props[p.name+"_direction"] = p.rec.Direction.String()
		}
	}
	if d.Class.Defined() {
		props["delta_group"] = d.Class.Label()
	}
	return props
}

func writeFeatureCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
