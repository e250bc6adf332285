package loader

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/ags"
	"github.com/sells-group/airmap/internal/fetcher"
	"github.com/sells-group/airmap/internal/model"
)

// IndicatorOptions controls indicator table loading.
type IndicatorOptions struct {
	Sheet      string
	Delimiter  string
	Encoding   string
	CodeColumn string
	// CodeWidth pads codes to this width. Zero pads to the nearest standard
	// AGS width.
	CodeWidth int
	SkipRows  int
}

// headerScanRows bounds the search for the row holding year columns.
const headerScanRows = 5

var indicatorCodeColumns = []string{"kennziffer", "ags", "code", "ags8", "ags5", "rs"}

// ReadIndicator reads an indicator table from CSV or XLSX. Two layouts are
// accepted: wide tables with one column per year (INKAR exports, where the
// years may sit in a second header row) and long tables with year and value
// columns. Codes are normalized and locale decimals parsed; cells that do not
// parse are treated as missing.
func ReadIndicator(path string, opts IndicatorOptions) ([]model.IndicatorValue, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		r, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet, SkipRows: opts.SkipRows})
		if err != nil {
			return nil, eris.Wrapf(err, "loader: read %s", path)
		}
		rows = r
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		delim := ';'
		if opts.Delimiter != "" {
			delim, _ = utf8.DecodeRuneInString(opts.Delimiter)
		}
		_, r, err := fetcher.ReadCSV(f, fetcher.CSVOptions{
			Delimiter:  delim,
			Encoding:   opts.Encoding,
			LazyQuotes: true,
			TrimSpace:  true,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "loader: read %s", path)
		}
		if opts.SkipRows < len(r) {
			rows = r[opts.SkipRows:]
		}
	}
	if len(rows) == 0 {
		return nil, model.NewConfigError("loader", "indicator table %s is empty", path)
	}
	return parseIndicatorRows(rows, opts)
}

func parseIndicatorRows(rows [][]string, opts IndicatorOptions) ([]model.IndicatorValue, error) {
	log := zap.L().With(zap.String("component", "loader.indicator"))

	header := headerColumns(rows[0])
	codeAliases := indicatorCodeColumns
	if opts.CodeColumn != "" {
		codeAliases = []string{strings.ToLower(opts.CodeColumn)}
	}

	var out []model.IndicatorValue
	var badCodes, badValues int
	emit := func(rawCode string, year int, cell string) {
		code, err := normalizeIndicatorCode(rawCode, opts.CodeWidth)
		if err != nil {
			badCodes++
			return
		}
		v, err := ags.ParseDecimal(cell)
		if err != nil {
			badValues++
			v = model.Undefined()
		}
		out = append(out, model.IndicatorValue{Code: code, Year: year, Value: v})
	}

	if iYear, iValue := header.index(yearColumns), header.index(valueColumns); iYear >= 0 && iValue >= 0 {
		iCode := header.index(codeAliases)
		if iCode < 0 {
			return nil, model.NewConfigError("loader", "indicator table has no code column %v", codeAliases)
		}
		for _, row := range rows[1:] {
			year, err := strconv.Atoi(field(row, iYear))
			if err != nil {
				badCodes++
				continue
			}
			emit(field(row, iCode), year, field(row, iValue))
		}
	} else {
		yearRow, yearCols := findYearColumns(rows)
		if len(yearCols) == 0 {
			return nil, model.NewConfigError("loader",
				"indicator table has neither year/value columns nor year-named columns in its first %d rows", headerScanRows)
		}
		iCode := 0
		for r := 0; r <= yearRow; r++ {
			if i := headerColumns(rows[r]).index(codeAliases); i >= 0 {
				iCode = i
				break
			}
		}
		order := make([]int, 0, len(yearCols))
		for col := range yearCols {
			order = append(order, col)
		}
		sort.Ints(order)
		for _, row := range rows[yearRow+1:] {
			raw := field(row, iCode)
			if raw == "" {
				continue
			}
			for _, col := range order {
				emit(raw, yearCols[col], field(row, col))
			}
		}
	}

	if badCodes > 0 || badValues > 0 {
		log.Debug("loader: skipped indicator cells",
			zap.Int("invalid_codes", badCodes), zap.Int("invalid_values", badValues))
	}
	if len(out) == 0 {
		return nil, model.NewConfigError("loader", "indicator table has no rows with a valid code")
	}
	log.Info("loader: indicator loaded",
		zap.Int("rows", len(out)), zap.Ints("years", model.IndicatorYears(out)))
	return out, nil
}

// findYearColumns returns the first header row holding year-like cells and
// the column -> year map of that row.
func findYearColumns(rows [][]string) (int, map[int]int) {
	for r := 0; r < len(rows) && r < headerScanRows; r++ {
		cols := make(map[int]int)
		for i, cell := range rows[r] {
			if y, ok := yearCell(cell); ok {
				cols[i] = y
			}
		}
		if len(cols) > 0 {
			return r, cols
		}
	}
	return 0, nil
}

func yearCell(cell string) (int, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(cell), ".0")
	if len(s) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1900 || y > 2100 {
		return 0, false
	}
	return y, true
}

func normalizeIndicatorCode(raw string, width int) (string, error) {
	if width > 0 {
		return ags.Normalize(raw, width)
	}
	return ags.Widen(raw)
}
