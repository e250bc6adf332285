package spatial

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// RepresentativePoint returns the area centroid of mp when it lies inside mp,
// and otherwise a point guaranteed to be inside its largest member polygon.
func RepresentativePoint(mp *geom.MultiPolygon) geom.Coord {
	c := xy.MultiPolygonCentroid(mp)
	if len(c) >= 2 && !math.IsNaN(c[0]) && !math.IsNaN(c[1]) &&
		inMultiPolygon(mp, c) == location.Interior {
		return geom.Coord{c[0], c[1]}
	}
	if p, ok := interiorPoint(largestPolygon(mp)); ok {
		return p
	}
	if len(c) >= 2 {
		return geom.Coord{c[0], c[1]}
	}
	flat := mp.FlatCoords()
	return geom.Coord{flat[0], flat[1]}
}

func largestPolygon(mp *geom.MultiPolygon) *geom.Polygon {
	var best *geom.Polygon
	bestArea := -1.0
	for i := range mp.NumPolygons() {
		p := mp.Polygon(i)
		if a := p.Area(); a > bestArea {
			best, bestArea = p, a
		}
	}
	return best
}

// interiorPoint intersects the polygon with the horizontal line through the
// middle of its bounding box and returns the midpoint of the widest inside
// interval.
func interiorPoint(p *geom.Polygon) (geom.Coord, bool) {
	if p == nil || p.NumLinearRings() == 0 {
		return nil, false
	}
	b := p.Bounds()
	y := (b.Min(1) + b.Max(1)) / 2
	stride := p.Stride()

	var xs []float64
	for r := range p.NumLinearRings() {
		flat := p.LinearRing(r).FlatCoords()
		for i := 0; i+2*stride-1 < len(flat); i += stride {
			x1, y1 := flat[i], flat[i+1]
			x2, y2 := flat[i+stride], flat[i+stride+1]
			if (y1 <= y && y < y2) || (y2 <= y && y < y1) {
				xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
			}
		}
	}
	sort.Float64s(xs)

	bestWidth := 0.0
	var best geom.Coord
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > bestWidth {
			bestWidth = w
			best = geom.Coord{(xs[i] + xs[i+1]) / 2, y}
		}
	}
	return best, best != nil
}
