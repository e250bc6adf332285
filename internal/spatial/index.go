// Package spatial answers point-in-district and nearest-neighbour queries
// over a fixed set of districts in a planar CRS.
package spatial

import (
	"sort"

	cgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/sells-group/airmap/internal/model"
)

type entry struct {
	district model.District
	bounds   *geom.Bounds
	rep      geom.Coord
}

// boxItem is a district bounding box in the R-tree; i is the entry position.
type boxItem struct {
	cgeom.Polygonal
	i int
}

// Index is an immutable query structure over districts. Iteration order is
// ascending district code, which makes containment on shared boundaries
// deterministic: the first district in code order wins.
type Index struct {
	entries []entry
	byCode  map[string]int
	boxes   *rtree.Rtree
	reps    *PointIndex
}

// Neighbor is a query result with its planar distance from the query point.
type Neighbor struct {
	Code     string
	Distance float64
}

// New builds an index. Codes must be unique and every district must carry a
// non-empty geometry.
func New(districts []model.District) (*Index, error) {
	idx := &Index{
		entries: make([]entry, 0, len(districts)),
		byCode:  make(map[string]int, len(districts)),
	}
	seen := make(map[string]bool, len(districts))
	for _, d := range districts {
		if seen[d.Code] {
			return nil, eris.Errorf("spatial: duplicate district code %s", d.Code)
		}
		seen[d.Code] = true
		if d.Geometry == nil || d.Geometry.Empty() {
			return nil, eris.Errorf("spatial: district %s has no geometry", d.Code)
		}
		idx.entries = append(idx.entries, entry{
			district: d,
			bounds:   d.Geometry.Bounds(),
			rep:      RepresentativePoint(d.Geometry),
		})
	}
	sort.Slice(idx.entries, func(i, j int) bool {
		return idx.entries[i].district.Code < idx.entries[j].district.Code
	})
	idx.boxes = rtree.NewTree(25, 50)
	reps := make([]Point, len(idx.entries))
	for i, e := range idx.entries {
		idx.byCode[e.district.Code] = i
		idx.boxes.Insert(&boxItem{Polygonal: &cgeom.Bounds{
			Min: cgeom.Point{X: e.bounds.Min(0), Y: e.bounds.Min(1)},
			Max: cgeom.Point{X: e.bounds.Max(0), Y: e.bounds.Max(1)},
		}, i: i})
		reps[i] = Point{ID: e.district.Code, Coord: e.rep}
	}
	idx.reps = NewPointIndex(reps)
	return idx, nil
}

// Len returns the number of districts.
func (idx *Index) Len() int { return len(idx.entries) }

// Districts returns the districts in code order.
func (idx *Index) Districts() []model.District {
	out := make([]model.District, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.district
	}
	return out
}

// Codes returns the district codes in ascending order.
func (idx *Index) Codes() []string {
	out := make([]string, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.district.Code
	}
	return out
}

// Centroid returns the cached representative point of code.
func (idx *Index) Centroid(code string) (geom.Coord, bool) {
	i, ok := idx.byCode[code]
	if !ok {
		return nil, false
	}
	return idx.entries[i].rep, true
}

// Contains returns the code of the district containing p. Points on a shared
// boundary go to the first district in code order; points inside a hole
// belong to no district.
func (idx *Index) Contains(p geom.Coord) (string, bool) {
	for _, i := range idx.candidates(p) {
		e := idx.entries[i]
		if inMultiPolygon(e.district.Geometry, p) != location.Exterior {
			return e.district.Code, true
		}
	}
	return "", false
}

// candidates returns the positions, in code order, of the districts whose
// bounding box holds p.
func (idx *Index) candidates(p geom.Coord) []int {
	hits := idx.boxes.SearchIntersect(searchBox(p, 0))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*boxItem).i)
	}
	sort.Ints(out)
	return out
}

// NearestCentroids returns up to k districts ordered by the distance from p
// to their representative points. radius <= 0 disables the distance limit;
// otherwise only districts within radius (inclusive) are returned.
func (idx *Index) NearestCentroids(p geom.Coord, k int, radius float64) []Neighbor {
	return idx.reps.Nearest(p, k, radius)
}

// inMultiPolygon locates p against a multipolygon. A point counts as inside a
// member polygon when it is not exterior to the shell and not strictly
// inside a hole.
func inMultiPolygon(mp *geom.MultiPolygon, p geom.Coord) location.Type {
	layout := mp.Layout()
	for i := range mp.NumPolygons() {
		if loc := inPolygon(layout, mp.Polygon(i), p); loc != location.Exterior {
			return loc
		}
	}
	return location.Exterior
}

func inPolygon(layout geom.Layout, poly *geom.Polygon, p geom.Coord) location.Type {
	if poly.NumLinearRings() == 0 {
		return location.Exterior
	}
	loc := xy.LocatePointInRing(layout, p, poly.LinearRing(0).FlatCoords())
	if loc == location.Exterior {
		return loc
	}
	for j := 1; j < poly.NumLinearRings(); j++ {
		switch xy.LocatePointInRing(layout, p, poly.LinearRing(j).FlatCoords()) {
		case location.Interior:
			return location.Exterior
		case location.Boundary:
			loc = location.Boundary
		}
	}
	return loc
}
