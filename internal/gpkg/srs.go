package gpkg

import (
	"strconv"

	"github.com/sells-group/airmap/internal/crs"
)

type srs struct {
	name         string
	id           int
	organization string
	orgID        int
	definition   string
	description  string
}

// requiredSRS are the rows every GeoPackage must carry.
var requiredSRS = []srs{
	{"Undefined cartesian SRS", -1, "NONE", -1, "undefined", "undefined cartesian coordinate reference system"},
	{"Undefined geographic SRS", 0, "NONE", 0, "undefined", "undefined geographic coordinate reference system"},
	{"WGS 84 geodetic", 4326, "EPSG", 4326, wktWGS84, "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid"},
}

const wktWGS84 = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

const wktETRS89UTM32N = `PROJCS["ETRS89 / UTM zone 32N",GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6258"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4258"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",9],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AUTHORITY["EPSG","25832"]]`

// srsFor describes epsg for gpkg_spatial_ref_sys. Codes without a bundled
// WKT get the "undefined" definition, which readers accept.
func srsFor(epsg int) srs {
	switch epsg {
	case 4326:
		return requiredSRS[2]
	case 25832:
		return srs{"ETRS89 / UTM zone 32N", 25832, "EPSG", 25832, wktETRS89UTM32N, ""}
	}
	name := "EPSG:" + strconv.Itoa(epsg)
	if c, err := crs.Lookup(epsg); err == nil {
		name = c.Name
	}
	return srs{name, epsg, "EPSG", epsg, "undefined", ""}
}
