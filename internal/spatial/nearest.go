package spatial

import (
	"math"
	"sort"

	cgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Point is an identified planar point.
type Point struct {
	ID    string
	Coord geom.Coord
}

// KNearest returns up to k points closest to target. Equal distances are
// ordered by ID so results are reproducible. radius <= 0 disables the limit;
// otherwise points farther than radius are excluded.
func KNearest(target geom.Coord, points []Point, k int, radius float64) []Neighbor {
	if k <= 0 {
		return nil
	}
	out := make([]Neighbor, 0, len(points))
	for _, p := range points {
		d := xy.Distance(target, p.Coord)
		if radius > 0 && d > radius {
			continue
		}
		out = append(out, Neighbor{Code: p.ID, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// PointIndex holds points in an R-tree so radius-limited nearest queries only
// rank the points inside the radius box.
type PointIndex struct {
	points []Point
	tree   *rtree.Rtree
}

type pointItem struct {
	cgeom.Point
	i int
}

// NewPointIndex indexes points. The slice is kept, not copied.
func NewPointIndex(points []Point) *PointIndex {
	pi := &PointIndex{points: points, tree: rtree.NewTree(25, 50)}
	for i, p := range points {
		if len(p.Coord) < 2 {
			continue
		}
		pi.tree.Insert(&pointItem{Point: cgeom.Point{X: p.Coord[0], Y: p.Coord[1]}, i: i})
	}
	return pi
}

// Len returns the number of indexed points.
func (pi *PointIndex) Len() int { return len(pi.points) }

// Nearest is KNearest over the indexed points.
func (pi *PointIndex) Nearest(target geom.Coord, k int, radius float64) []Neighbor {
	if k <= 0 {
		return nil
	}
	if !(radius > 0) || math.IsInf(radius, 1) {
		return KNearest(target, pi.points, k, radius)
	}
	hits := pi.tree.SearchIntersect(searchBox(target, radius))
	candidates := make([]Point, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, pi.points[h.(*pointItem).i])
	}
	return KNearest(target, candidates, k, radius)
}

// searchBox is the square of half-width pad around c, widened by a small
// tolerance so points on its edge are never lost to rounding.
func searchBox(c geom.Coord, pad float64) *cgeom.Bounds {
	pad += 1e-9 * math.Max(1, math.Max(math.Abs(c[0]), math.Abs(c[1])))
	return &cgeom.Bounds{
		Min: cgeom.Point{X: c[0] - pad, Y: c[1] - pad},
		Max: cgeom.Point{X: c[0] + pad, Y: c[1] + pad},
	}
}
