package loader

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/ags"
	"github.com/sells-group/airmap/internal/crs"
	"github.com/sells-group/airmap/internal/fetcher"
	"github.com/sells-group/airmap/internal/model"
)

// StationOptions controls station table loading.
type StationOptions struct {
	// ReadingsPath is an optional long-format readings CSV
	// (code,year,component,value).
	ReadingsPath string
	SourceEPSG   int
	TargetEPSG   int
	// Component labels readings that carry none.
	Component string
}

// Column aliases accepted in station CSVs.
var (
	codeColumns      = []string{"code", "station_code", "station", "id"}
	nameColumns      = []string{"name", "station_name"}
	networkColumns   = []string{"network", "network_code"}
	lonColumns       = []string{"lon", "longitude", "x"}
	latColumns       = []string{"lat", "latitude", "y"}
	yearColumns      = []string{"year", "jahr"}
	componentColumns = []string{"component", "pollutant"}
	valueColumns     = []string{"value", "wert", "mean"}
)

// ReadStations loads a station table from a CSV or GeoJSON file and
// reprojects station points into the district CRS.
//
// A CSV lists one station per row (code, lon, lat, optional name and
// network). Rows that also carry year and value columns are readings of
// that station, which is the layout `airmap fetch` writes. GeoJSON points
// carry readings in a "values" object keyed by year.
func ReadStations(ctx context.Context, path string, opts StationOptions) (*model.StationTable, error) {
	if opts.TargetEPSG == 0 {
		return nil, model.NewConfigError("loader", "district CRS is not configured")
	}
	if opts.SourceEPSG == 0 {
		return nil, model.NewConfigError("loader", "station CRS is not configured")
	}
	tr, err := crs.NewTransformer(opts.SourceEPSG, opts.TargetEPSG)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var table *model.StationTable
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		table, err = readStationsGeoJSON(f, tr, opts)
	default:
		table, err = readStationsCSV(f, tr, opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.ReadingsPath != "" {
		rf, err := os.Open(opts.ReadingsPath)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: open %s", opts.ReadingsPath)
		}
		defer rf.Close() //nolint:errcheck
		readings, err := readReadingsCSV(ctx, rf, opts)
		if err != nil {
			return nil, err
		}
		table.Readings = append(table.Readings, readings...)
	}

	zap.L().With(zap.String("component", "loader.stations")).Info("loader: stations loaded",
		zap.Int("stations", len(table.Stations)),
		zap.Int("readings", len(table.Readings)),
		zap.Ints("years", table.Years()),
	)
	return table, nil
}

// columns maps lower-cased header names to indexes.
type columns map[string]int

func headerColumns(header []string) columns {
	c := make(columns, len(header))
	for i, h := range header {
		c[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return c
}

func (c columns) index(aliases []string) int {
	for _, a := range aliases {
		if i, ok := c[a]; ok {
			return i
		}
	}
	return -1
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func readStationsCSV(r io.Reader, tr *crs.Transformer, opts StationOptions) (*model.StationTable, error) {
	header, rows, err := fetcher.ReadCSV(r, fetcher.CSVOptions{HasHeader: true, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "loader: read stations")
	}
	cols := headerColumns(header)
	iCode, iLon, iLat := cols.index(codeColumns), cols.index(lonColumns), cols.index(latColumns)
	if iCode < 0 || iLon < 0 || iLat < 0 {
		return nil, model.NewConfigError("loader", "station table needs code, lon and lat columns, got %v", header)
	}
	iName, iNet := cols.index(nameColumns), cols.index(networkColumns)
	iYear, iComp, iValue := cols.index(yearColumns), cols.index(componentColumns), cols.index(valueColumns)
	hasReadings := iYear >= 0 && iValue >= 0

	table := &model.StationTable{}
	seen := make(map[string]bool)
	for n, row := range rows {
		code := field(row, iCode)
		if code == "" {
			continue
		}
		if !seen[code] {
			lon, errX := strconv.ParseFloat(field(row, iLon), 64)
			lat, errY := strconv.ParseFloat(field(row, iLat), 64)
			if errX != nil || errY != nil {
				return nil, eris.Errorf("loader: station %s on row %d has invalid coordinates", code, n+2)
			}
			pt, err := tr.Coord(geom.Coord{lon, lat})
			if err != nil {
				return nil, eris.Wrapf(err, "loader: station %s", code)
			}
			seen[code] = true
			table.Stations = append(table.Stations, model.Station{
				Code:    code,
				Name:    field(row, iName),
				Network: field(row, iNet),
				Point:   pt,
			})
		}
		if !hasReadings || field(row, iYear) == "" {
			continue
		}
		reading, err := parseReading(code, field(row, iYear), field(row, iComp), field(row, iValue), opts)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: row %d", n+2)
		}
		table.Readings = append(table.Readings, reading)
	}
	return table, nil
}

// readReadingsCSV streams a long-format readings table, which can hold a
// row per station, year and component.
func readReadingsCSV(ctx context.Context, r io.Reader, opts StationOptions) ([]model.Reading, error) {
	var iCode, iYear, iComp, iValue int
	var out []model.Reading
	err := fetcher.ScanCSV(ctx, r, fetcher.CSVOptions{HasHeader: true, TrimSpace: true},
		func(header []string) error {
			cols := headerColumns(header)
			iCode, iYear, iValue = cols.index(codeColumns), cols.index(yearColumns), cols.index(valueColumns)
			if iCode < 0 || iYear < 0 || iValue < 0 {
				return model.NewConfigError("loader", "readings table needs code, year and value columns, got %v", header)
			}
			iComp = cols.index(componentColumns)
			return nil
		},
		func(line int, row []string) error {
			reading, err := parseReading(field(row, iCode), field(row, iYear), field(row, iComp), field(row, iValue), opts)
			if err != nil {
				return eris.Wrapf(err, "loader: readings line %d", line)
			}
			out = append(out, reading)
			return nil
		})
	if err != nil {
		if model.IsConfigError(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, "loader: read readings")
	}
	return out, nil
}

func parseReading(code, year, component, value string, opts StationOptions) (model.Reading, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return model.Reading{}, eris.Errorf("loader: invalid year %q for station %s", year, code)
	}
	v, err := ags.ParseDecimal(value)
	if err != nil {
		return model.Reading{}, eris.Wrapf(err, "loader: value for station %s", code)
	}
	if component == "" {
		component = opts.Component
	}
	return model.Reading{StationCode: code, Year: y, Component: component, Value: v}, nil
}

func readStationsGeoJSON(r io.Reader, tr *crs.Transformer, opts StationOptions) (*model.StationTable, error) {
	fc, err := fetcher.DecodeFeatureCollection(r)
	if err != nil {
		return nil, eris.Wrap(err, "loader: decode geojson stations")
	}

	table := &model.StationTable{}
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok || pt.Empty() {
			return nil, eris.Errorf("loader: station feature %d is not a point", i)
		}
		props := stringProps(f.Properties)
		code := lookup(props, codeColumns)
		if code == "" {
			code = f.ID
		}
		if code == "" {
			return nil, eris.Errorf("loader: station feature %d has no code", i)
		}
		xy, err := tr.Coord(pt.Coords())
		if err != nil {
			return nil, eris.Wrapf(err, "loader: station %s", code)
		}
		table.Stations = append(table.Stations, model.Station{
			Code:    code,
			Name:    lookup(props, nameColumns),
			Network: lookup(props, networkColumns),
			Point:   xy,
		})

		component := lookup(props, componentColumns)
		if component == "" {
			component = opts.Component
		}
		values, _ := f.Properties["values"].(map[string]any)
		years := make([]string, 0, len(values))
		for y := range values {
			years = append(years, y)
		}
		sort.Strings(years)
		for _, y := range years {
			year, err := strconv.Atoi(y)
			if err != nil {
				return nil, eris.Errorf("loader: station %s has non-year key %q in values", code, y)
			}
			v := model.Undefined()
			if x, ok := values[y].(float64); ok {
				v = model.Defined(x)
			}
			table.Readings = append(table.Readings, model.Reading{
				StationCode: code, Year: year, Component: component, Value: v,
			})
		}
	}
	return table, nil
}

// WriteStationTable writes t in the combined CSV layout ReadStations
// accepts: one row per reading, station attributes repeated. Points are
// written as-is, so callers write tables that are still in lon/lat.
func WriteStationTable(w io.Writer, t *model.StationTable) error {
	byCode := make(map[string]model.Station, len(t.Stations))
	for _, s := range t.Stations {
		byCode[s.Code] = s
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "name", "network", "lon", "lat", "year", "component", "value"}); err != nil {
		return eris.Wrap(err, "loader: write station header")
	}
	for _, r := range t.Readings {
		s, ok := byCode[r.StationCode]
		if !ok {
			continue
		}
		value := ""
		if f, ok := r.Value.Float(); ok {
			value = strconv.FormatFloat(f, 'f', -1, 64)
		}
		if err := cw.Write([]string{
			s.Code, s.Name, s.Network,
			strconv.FormatFloat(s.Point[0], 'f', -1, 64),
			strconv.FormatFloat(s.Point[1], 'f', -1, 64),
			strconv.Itoa(r.Year), r.Component, value,
		}); err != nil {
			return eris.Wrap(err, "loader: write station row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "loader: flush station table")
}
