// Package crs knows the coordinate reference systems a run may use and
// projects geographic coordinates into UTM so distances are planar.
package crs

import (
	"strconv"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/airmap/internal/model"
)

// Common EPSG codes.
const (
	WGS84       = 4326
	ETRS89      = 4258
	WebMercator = 3857
	LAEAEurope  = 3035
	// ETRS89UTM32N is the planar CRS of the Bavarian ALKIS boundaries.
	ETRS89UTM32N = 25832
)

// CRS describes one supported reference system.
type CRS struct {
	EPSG       int
	Name       string
	Geographic bool
	// Planar is true when planar distances approximate ground distances.
	// Web Mercator is projected but not planar in this sense.
	Planar bool
	// Zone is the UTM zone (northern hemisphere) for transverse Mercator CRSs.
	Zone int
	// Proj4 is the definition handed to the projection library.
	Proj4 string
}

// UnitsPerKilometre converts kilometres into CRS units. All planar CRSs known
// here are metric.
func (c CRS) UnitsPerKilometre() float64 { return 1000 }

const webMercatorProj4 = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"

var registry = func() map[int]CRS {
	m := map[int]CRS{
		WGS84:       {EPSG: WGS84, Name: "WGS 84", Geographic: true, Proj4: "+proj=longlat +datum=WGS84"},
		ETRS89:      {EPSG: ETRS89, Name: "ETRS89", Geographic: true, Proj4: "+proj=longlat +ellps=GRS80"},
		WebMercator: {EPSG: WebMercator, Name: "WGS 84 / Pseudo-Mercator", Proj4: webMercatorProj4},
		LAEAEurope: {EPSG: LAEAEurope, Name: "ETRS89-extended / LAEA Europe", Planar: true,
			Proj4: "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +units=m"},
	}
	for zone := 28; zone <= 38; zone++ {
		z := strconv.Itoa(zone)
		m[25800+zone] = CRS{EPSG: 25800 + zone, Name: "ETRS89 / UTM zone " + z + "N", Planar: true, Zone: zone,
			Proj4: "+proj=utm +zone=" + z + " +ellps=GRS80 +units=m"}
		m[32600+zone] = CRS{EPSG: 32600 + zone, Name: "WGS 84 / UTM zone " + z + "N", Planar: true, Zone: zone,
			Proj4: "+proj=utm +zone=" + z + " +datum=WGS84 +units=m"}
	}
	return m
}()

// Lookup returns the CRS for epsg. An unknown or zero code is a configuration
// error: distances cannot be trusted without a known CRS.
func Lookup(epsg int) (CRS, error) {
	if epsg == 0 {
		return CRS{}, model.NewConfigError("crs", "no CRS configured")
	}
	c, ok := registry[epsg]
	if !ok {
		return CRS{}, model.NewConfigError("crs", "unsupported CRS EPSG:%d", epsg)
	}
	return c, nil
}

// RequireProjected returns the CRS for epsg, failing when it is geographic or
// otherwise unsuitable for distance computations.
func RequireProjected(epsg int) (CRS, error) {
	c, err := Lookup(epsg)
	if err != nil {
		return CRS{}, err
	}
	if c.Geographic {
		return CRS{}, model.NewConfigError("crs", "EPSG:%d is geographic; distances need a projected CRS", epsg)
	}
	if !c.Planar {
		return CRS{}, model.NewConfigError("crs", "EPSG:%d (%s) does not preserve lengths", epsg, c.Name)
	}
	return c, nil
}

// Transformer maps coordinates from a source CRS into a planar target CRS.
type Transformer struct {
	from, to CRS
	fn       proj.Transformer
}

// NewTransformer builds a transformer from -> to. The target must be planar.
func NewTransformer(from, to int) (*Transformer, error) {
	dst, err := RequireProjected(to)
	if err != nil {
		return nil, err
	}
	src, err := Lookup(from)
	if err != nil {
		return nil, err
	}
	t := &Transformer{from: src, to: dst}
	if src.EPSG == dst.EPSG {
		return t, nil
	}
	srcSR, err := proj.Parse(src.Proj4)
	if err != nil {
		return nil, model.NewConfigError("crs", "parse EPSG:%d: %v", from, err)
	}
	dstSR, err := proj.Parse(dst.Proj4)
	if err != nil {
		return nil, model.NewConfigError("crs", "parse EPSG:%d: %v", to, err)
	}
	t.fn, err = srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, model.NewConfigError("crs", "cannot transform EPSG:%d to EPSG:%d: %v", from, to, err)
	}
	return t, nil
}

// Identity reports whether the transformer leaves coordinates unchanged.
func (t *Transformer) Identity() bool { return t.fn == nil }

// Forward maps x/y (lon/lat in degrees for geographic sources) to the target.
func (t *Transformer) Forward(x, y float64) (float64, float64, error) {
	if t.fn == nil {
		return x, y, nil
	}
	px, py, err := t.fn(x, y)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "crs: transform (%g, %g) from EPSG:%d to EPSG:%d", x, y, t.from.EPSG, t.to.EPSG)
	}
	return px, py, nil
}

// Coord is Forward for a geom.Coord.
func (t *Transformer) Coord(c geom.Coord) (geom.Coord, error) {
	x, y, err := t.Forward(c[0], c[1])
	if err != nil {
		return nil, err
	}
	return geom.Coord{x, y}, nil
}

// FlatCoords transforms a flat XY coordinate slice in place.
func (t *Transformer) FlatCoords(flat []float64, stride int) error {
	if t.fn == nil {
		return nil
	}
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t.Forward(flat[i], flat[i+1])
		if err != nil {
			return err
		}
		flat[i], flat[i+1] = x, y
	}
	return nil
}
