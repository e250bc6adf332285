package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/airmap/internal/model"
)

// yearColumns returns the per-year CSV header for the configured variable
// names.
func yearColumns(xName, yName string) []string {
	return []string{
		"code", "name", "year", "indicator_year",
		xName, xName + "_provenance", xName + "_sources",
		yName, yName + "_provenance", yName + "_sources",
		"group", "y_bin", "x_bin", "breaks_policy", "flags",
	}
}

func deltaColumns(xName, yName string) []string {
	cols := []string{"code", "name"}
	for _, v := range []string{xName, yName} {
		cols = append(cols,
			v+"_first", v+"_last", v+"_abs_delta", v+"_pct_delta", v+"_direction")
	}
	return append(cols, "delta_group", "delta_policy", "flags")
}

func (w *Writer) writeCSVs(dir string, set resultSet) ([]string, error) {
	var written []string
	for _, y := range set.years {
		path := filepath.Join(dir, fmt.Sprintf("districts_%d.csv", y.Year))
		if err := w.WriteYearCSV(path, set.xName, set.yName, y.IndicatorYear, y.Rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if len(set.deltas) > 0 {
		path := filepath.Join(dir, "deltas.csv")
		if err := w.WriteDeltaCSV(path, set.xName, set.yName, set.deltas); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteYearCSV writes one year's classified rows. Undefined values are "NA".
func (w *Writer) WriteYearCSV(path, xName, yName string, indicatorYear int, rows []model.DistrictYear) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create year csv")
	}
	defer f.Close() //nolint:errcheck

	cw := csv.NewWriter(f)
	if err := cw.Write(yearColumns(xName, yName)); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range rows {
		if err := cw.Write(w.yearRow(r, indicatorYear)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush year csv")
	}
	return f.Close()
}

func (w *Writer) yearRow(r model.DistrictYear, indicatorYear int) []string {
	iy := ""
	if indicatorYear != 0 {
		iy = strconv.Itoa(indicatorYear)
	}
	return []string{
		r.Code,
		w.name(r.Code),
		strconv.Itoa(r.Year),
		iy,
		r.X.Value.String(),
		string(r.X.Provenance),
		strconv.Itoa(r.X.SourceCount),
		r.Y.Value.String(),
		string(r.Y.Provenance),
		strconv.Itoa(r.Y.SourceCount),
		r.Class.Label(),
		binString(r.Class.Y),
		binString(r.Class.X),
		string(r.BreaksPolicy),
		flagList(rowFlags(r)),
	}
}

func binString(b int) string {
	if b == 0 {
		return ""
	}
	return strconv.Itoa(b)
}

// WriteDeltaCSV writes the first-to-last deltas.
func (w *Writer) WriteDeltaCSV(path, xName, yName string, deltas []model.DistrictDelta) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create delta csv")
	}
	defer f.Close() //nolint:errcheck

	cw := csv.NewWriter(f)
	if err := cw.Write(deltaColumns(xName, yName)); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, d := range deltas {
		row := []string{d.Code, w.name(d.Code)}
		for _, rec := range []model.DeltaRecord{d.X, d.Y} {
			row = append(row,
				rec.First.String(),
				rec.Last.String(),
				rec.Absolute.String(),
				rec.Percent.String(),
				directionString(rec.Direction),
			)
		}
		row = append(row, d.Class.Label(), d.Policy, flagList(deltaFlags(d)))
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush delta csv")
	}
	return f.Close()
}

func directionString(d model.Direction) string {
	if d == model.DirectionUndefined {
		return ""
	}
	return strings.ToLower(d.String())
}
