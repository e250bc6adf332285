package loader

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/model"
)

// ReadShapefileDistricts reads a polygon shapefile and its .dbf attributes.
func ReadShapefileDistricts(path string, opts DistrictOptions) ([]model.District, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var recs []record
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		props := make(map[string]string, len(names))
		for i, name := range names {
			props[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		recs = append(recs, record{props: props, geom: mp})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "loader: read shapefile %s", path)
	}
	if skipped > 0 {
		zap.L().Debug("loader: skipped non-polygon shapefile records", zap.Int("skipped", skipped))
	}
	return buildDistricts(recs, opts.SourceEPSG, opts)
}

// polygonToMultiPolygon groups shapefile parts into polygons. Clockwise
// rings are shells, counter-clockwise rings are holes of the shell that
// contains them. Files without any clockwise ring get one polygon per part.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var shells, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("loader: skipping degenerate ring", zap.Int32("part", i))
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if xy.IsRingCounterClockwise(geom.XY, flat) {
			holes = append(holes, flat)
		} else {
			shells = append(shells, flat)
		}
	}
	if len(shells) == 0 {
		shells, holes = holes, nil
	}
	if len(shells) == 0 {
		return nil
	}

	polys := make([][][]float64, len(shells))
	for i, s := range shells {
		polys[i] = [][]float64{s}
	}
	for _, h := range holes {
		pt := geom.Coord{h[0], h[1]}
		for i, s := range shells {
			if xy.LocatePointInRing(geom.XY, pt, s) != location.Exterior {
				polys[i] = append(polys[i], h)
				break
			}
		}
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, rings := range polys {
		var flat []float64
		var ends []int
		for _, r := range rings {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("loader: skipping malformed polygon part", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
