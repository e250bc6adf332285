// Package loader reads district boundaries, station tables and indicator
// tables from the file formats the pipeline accepts.
package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/ags"
	"github.com/sells-group/airmap/internal/crs"
	"github.com/sells-group/airmap/internal/fetcher"
	"github.com/sells-group/airmap/internal/gpkg"
	"github.com/sells-group/airmap/internal/model"
)

// DistrictOptions controls how boundary features become districts.
type DistrictOptions struct {
	// CodeFields are tried in order; the first present, non-empty one wins.
	CodeFields []string
	NameFields []string
	// CodeWidth is the district code width; longer source codes are
	// truncated to it.
	CodeWidth int
	// SourceEPSG is the CRS of the file. Zero means TargetEPSG. A
	// GeoPackage layer's own srs_id takes precedence.
	SourceEPSG int
	TargetEPSG int
	// Layer picks the GeoPackage table.
	Layer string
	// LevelField/LevelValues keep only features of one administrative level.
	LevelField  string
	LevelValues []string
	// Prefixes keep only codes inside these units.
	Prefixes []string
}

// record is one boundary feature before it is validated.
type record struct {
	props map[string]string
	geom  geom.T
}

// ReadDistricts reads path, dispatching on its extension: .geojson/.json,
// .shp, .gpkg, or a .zip holding one of those.
func ReadDistricts(ctx context.Context, path string, opts DistrictOptions) ([]model.District, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadGeoJSONDistricts(f, opts)
	case ".shp":
		return ReadShapefileDistricts(path, opts)
	case ".gpkg":
		return ReadGeoPackageDistricts(ctx, path, opts)
	case ".zip":
		dir, err := os.MkdirTemp("", "airmap-districts-*")
		if err != nil {
			return nil, eris.Wrap(err, "loader: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck
		hint := opts.Layer
		if hint == "" {
			hint = "krs"
		}
		inner, err := fetcher.ExtractBoundaries(path, dir, hint)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: extract %s", path)
		}
		if inner == "" {
			return nil, model.NewConfigError("loader", "%s holds no .shp, .gpkg or .geojson file", path)
		}
		return ReadDistricts(ctx, inner, opts)
	default:
		return nil, model.NewConfigError("loader", "unsupported boundary format %q", filepath.Ext(path))
	}
}

// ReadGeoJSONDistricts reads a FeatureCollection of (multi)polygons.
func ReadGeoJSONDistricts(r io.Reader, opts DistrictOptions) ([]model.District, error) {
	fc, err := fetcher.DecodeFeatureCollection(r)
	if err != nil {
		return nil, eris.Wrap(err, "loader: decode geojson districts")
	}
	recs := make([]record, 0, len(fc.Features))
	for _, f := range fc.Features {
		recs = append(recs, record{props: stringProps(f.Properties), geom: f.Geometry})
	}
	return buildDistricts(recs, opts.SourceEPSG, opts)
}

// ReadGeoPackageDistricts reads one feature table of a GeoPackage.
func ReadGeoPackageDistricts(ctx context.Context, path string, opts DistrictOptions) ([]model.District, error) {
	db, err := gpkg.Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck

	layer, feats, err := db.ReadLayer(ctx, opts.Layer)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", path)
	}
	src := opts.SourceEPSG
	if layer.SRSID > 0 {
		src = layer.SRSID
	}
	recs := make([]record, 0, len(feats))
	for _, f := range feats {
		recs = append(recs, record{props: stringProps(f.Properties), geom: f.Geometry})
	}
	return buildDistricts(recs, src, opts)
}

// stringProps renders attribute values as strings. Whole floats print
// without a fraction so numeric codes survive ("9162" not "9162.000000").
func stringProps(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		switch x := v.(type) {
		case nil:
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case int64:
			out[k] = strconv.FormatInt(x, 10)
		case int:
			out[k] = strconv.Itoa(x)
		case bool:
			out[k] = strconv.FormatBool(x)
		}
	}
	return out
}

// lookup returns the first non-empty value among fields, matching names
// case-insensitively when there is no exact match.
func lookup(props map[string]string, fields []string) string {
	for _, f := range fields {
		if v := strings.TrimSpace(props[f]); v != "" {
			return v
		}
		for k, v := range props {
			if strings.EqualFold(k, f) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// buildDistricts filters, validates, reprojects and de-duplicates features.
func buildDistricts(recs []record, srcEPSG int, opts DistrictOptions) ([]model.District, error) {
	log := zap.L().With(zap.String("component", "loader.districts"))

	if opts.TargetEPSG == 0 {
		return nil, model.NewConfigError("loader", "district CRS is not configured")
	}
	if srcEPSG == 0 {
		srcEPSG = opts.TargetEPSG
	}
	tr, err := crs.NewTransformer(srcEPSG, opts.TargetEPSG)
	if err != nil {
		return nil, err
	}

	levels := make(map[string]bool, len(opts.LevelValues))
	for _, v := range opts.LevelValues {
		levels[v] = true
	}

	var out []model.District
	seen := make(map[string]bool)
	var skipped, dupes, noCode int
	for i, rec := range recs {
		if opts.LevelField != "" && len(levels) > 0 && !levels[lookup(rec.props, []string{opts.LevelField})] {
			skipped++
			continue
		}

		raw := lookup(rec.props, opts.CodeFields)
		if raw == "" {
			noCode++
			continue
		}
		code, err := ags.Coarsen(raw, opts.CodeWidth)
		if err != nil {
			log.Debug("loader: skipping feature with invalid code", zap.Int("feature", i), zap.String("code", raw))
			noCode++
			continue
		}
		if opts.CodeWidth > 0 && len(code) != opts.CodeWidth {
			skipped++
			continue
		}
		if !ags.MatchesAny(code, opts.Prefixes) {
			skipped++
			continue
		}
		if seen[code] {
			dupes++
			continue
		}

		mp, err := toMultiPolygon(rec.geom)
		if err != nil {
			log.Debug("loader: skipping feature without polygon geometry", zap.String("code", code), zap.Error(err))
			skipped++
			continue
		}
		if !tr.Identity() {
			if mp, err = reprojected(mp, tr); err != nil {
				return nil, eris.Wrapf(err, "loader: district %s", code)
			}
		}

		seen[code] = true
		out = append(out, model.District{
			Code:     code,
			Name:     lookup(rec.props, opts.NameFields),
			Geometry: mp,
		})
	}

	if noCode > 0 && len(out) == 0 {
		return nil, model.NewConfigError("loader",
			"none of the fields %v holds a district code", opts.CodeFields)
	}
	if dupes > 0 {
		log.Warn("loader: dropped duplicate district codes (first wins)", zap.Int("duplicates", dupes))
	}
	log.Info("loader: districts loaded",
		zap.Int("districts", len(out)),
		zap.Int("filtered", skipped),
		zap.Int("without_code", noCode),
		zap.Int("source_epsg", srcEPSG),
	)
	return out, nil
}

func toMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		if t.Empty() {
			return nil, eris.New("loader: empty multipolygon")
		}
		return oriented(t), nil
	case *geom.Polygon:
		if t.Empty() {
			return nil, eris.New("loader: empty polygon")
		}
		mp := geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "loader: wrap polygon")
		}
		return oriented(mp), nil
	case nil:
		return nil, eris.New("loader: missing geometry")
	default:
		return nil, eris.Errorf("loader: unsupported geometry %T", g)
	}
}

// oriented returns a copy of mp with counter-clockwise shells and clockwise
// holes, so Area subtracts holes whatever winding the source used.
func oriented(mp *geom.MultiPolygon) *geom.MultiPolygon {
	flat := append([]float64(nil), mp.FlatCoords()...)
	stride := mp.Stride()
	offset := 0
	for _, ends := range mp.Endss() {
		for r, end := range ends {
			ring := flat[offset:end]
			offset = end
			if len(ring) < 4*stride {
				continue
			}
			if xy.IsRingCounterClockwise(mp.Layout(), ring) != (r == 0) {
				reverseRing(ring, stride)
			}
		}
	}
	return geom.NewMultiPolygonFlat(mp.Layout(), flat, mp.Endss())
}

func reverseRing(ring []float64, stride int) {
	for i, j := 0, len(ring)-stride; i < j; i, j = i+stride, j-stride {
		for k := 0; k < stride; k++ {
			ring[i+k], ring[j+k] = ring[j+k], ring[i+k]
		}
	}
}

func reprojected(mp *geom.MultiPolygon, tr *crs.Transformer) (*geom.MultiPolygon, error) {
	flat := append([]float64(nil), mp.FlatCoords()...)
	if err := tr.FlatCoords(flat, mp.Stride()); err != nil {
		return nil, err
	}
	return geom.NewMultiPolygonFlat(mp.Layout(), flat, mp.Endss()), nil
}
