package model

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// District is an administrative polygon identified by a fixed-width,
// zero-padded code. Geometry is planar in the run's projected CRS.
type District struct {
	Code     string             `json:"code"`
	Name     string             `json:"name,omitempty"`
	Geometry *geom.MultiPolygon `json:"-"`
}

// Station is a monitoring point. Point is expressed in the same projected CRS
// as the districts.
type Station struct {
	Code    string     `json:"code"`
	Name    string     `json:"name,omitempty"`
	Network string     `json:"network,omitempty"`
	Point   geom.Coord `json:"-"`
}

// Reading is one annual value for a (station, year, component). Value is
// undefined when the station reported nothing for that year.
type Reading struct {
	StationCode string `json:"station_code"`
	Year        int    `json:"year"`
	Component   string `json:"component"`
	Value       Value  `json:"value"`
}

// StationValue pairs a station with a defined scalar.
type StationValue struct {
	Station Station
	Value   float64
}

// StationTable holds every station and its readings for a run. It is read-only
// once loaded.
type StationTable struct {
	Stations []Station
	Readings []Reading
}

// Series returns the stations with a defined value for (year, component),
// ordered by station code. A station with several readings for the same key
// keeps the last one.
func (t *StationTable) Series(year int, component string) []StationValue {
	byCode := make(map[string]Station, len(t.Stations))
	for _, s := range t.Stations {
		byCode[s.Code] = s
	}

	values := make(map[string]float64)
	for _, r := range t.Readings {
		if r.Year != year || r.Component != component {
			continue
		}
		f, ok := r.Value.Float()
		if !ok {
			delete(values, r.StationCode)
			continue
		}
		if _, known := byCode[r.StationCode]; !known {
			continue
		}
		values[r.StationCode] = f
	}

	out := make([]StationValue, 0, len(values))
	for code, f := range values {
		out = append(out, StationValue{Station: byCode[code], Value: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Station.Code < out[j].Station.Code })
	return out
}

// Years returns the distinct years present in the readings, ascending.
func (t *StationTable) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range t.Readings {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}

// IndicatorValue is one row of a tabular indicator keyed by an administrative
// code that is at least as fine as the district code.
type IndicatorValue struct {
	Code  string `json:"code"`
	Year  int    `json:"year"`
	Value Value  `json:"value"`
}

// IndicatorYears returns the distinct years present in rows, ascending.
func IndicatorYears(rows []IndicatorValue) []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range rows {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}
