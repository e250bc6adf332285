// Package export writes run results as CSV, GeoJSON and GeoPackage files
// plus a summary manifest. Every output joins back to the district table by
// code; subsets restrict all outputs to districts under a code prefix.
package export

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/ags"
	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/pipeline"
)

// Output formats.
const (
	FormatCSV     = "csv"
	FormatGeoJSON = "geojson"
	FormatGPKG    = "gpkg"
)

// DefaultFormats is used when none are configured.
var DefaultFormats = []string{FormatCSV, FormatGeoJSON}

// Options configures a Writer.
type Options struct {
	Dir     string
	Formats []string
	// Subsets maps a subset name to a code prefix, e.g. oberpfalz: "093".
	Subsets map[string]string
	// EPSG is the CRS of the district geometries.
	EPSG int
}

// Writer writes the artifacts of one run.
type Writer struct {
	opts      Options
	districts map[string]model.District
	log       *zap.Logger
}

// New validates opts. districts supply names and geometries.
func New(opts Options, districts []model.District) (*Writer, error) {
	if opts.Dir == "" {
		return nil, model.NewConfigError("export", "output directory is required")
	}
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultFormats
	}
	for i, f := range opts.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case FormatCSV, FormatGeoJSON, FormatGPKG:
		default:
			return nil, model.NewConfigError("export", "unknown output format %q", f)
		}
		opts.Formats[i] = f
	}
	for name, prefix := range opts.Subsets {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return nil, model.NewConfigError("export", "invalid subset name %q", name)
		}
		if _, err := ags.Normalize(prefix, len(prefix)); err != nil || prefix == "" {
			return nil, model.NewConfigError("export", "subset %s: invalid prefix %q", name, prefix)
		}
	}

	byCode := make(map[string]model.District, len(districts))
	for _, d := range districts {
		byCode[d.Code] = d
	}
	return &Writer{
		opts:      opts,
		districts: byCode,
		log:       zap.L().With(zap.String("component", "export")),
	}, nil
}

// WriteAll writes every configured format for the full result and for each
// subset (into a subdirectory named after it). It returns the written paths.
func (w *Writer) WriteAll(ctx context.Context, res *pipeline.Result) ([]string, error) {
	if res == nil {
		return nil, eris.New("export: nil result")
	}
	var written []string

	paths, err := w.writeSet(ctx, w.opts.Dir, res, "")
	if err != nil {
		return written, err
	}
	written = append(written, paths...)

	names := make([]string, 0, len(w.opts.Subsets))
	for name := range w.opts.Subsets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		paths, err := w.writeSet(ctx, filepath.Join(w.opts.Dir, name), res, w.opts.Subsets[name])
		if err != nil {
			return written, eris.Wrapf(err, "export: subset %s", name)
		}
		written = append(written, paths...)
	}

	p, err := WriteSummary(filepath.Join(w.opts.Dir, "summary.yaml"), res)
	if err != nil {
		return written, err
	}
	written = append(written, p)

	w.log.Info("export: outputs written",
		zap.String("dir", w.opts.Dir),
		zap.Strings("formats", w.opts.Formats),
		zap.Int("files", len(written)),
	)
	return written, nil
}

func (w *Writer) writeSet(ctx context.Context, dir string, res *pipeline.Result, prefix string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", dir)
	}
	set := filterResult(res, prefix)

	var written []string
	for _, format := range w.opts.Formats {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		var (
			paths []string
			err   error
		)
		switch format {
		case FormatCSV:
			paths, err = w.writeCSVs(dir, set)
		case FormatGeoJSON:
			paths, err = w.writeGeoJSONs(dir, set)
		case FormatGPKG:
			var p string
			p, err = w.WriteGeoPackage(ctx, filepath.Join(dir, "airmap.gpkg"), set)
			paths = []string{p}
		}
		if err != nil {
			return written, err
		}
		written = append(written, paths...)
	}
	return written, nil
}

// resultSet is the part of a result that gets written.
type resultSet struct {
	years  []pipeline.YearResult
	deltas []model.DistrictDelta
	xName  string
	yName  string
}

func filterResult(res *pipeline.Result, prefix string) resultSet {
	set := resultSet{xName: res.Config.XName, yName: res.Config.YName}
	for _, y := range res.Years {
		if y.Err != nil {
			continue
		}
		rows := make([]model.DistrictYear, 0, len(y.Rows))
		for _, r := range y.Rows {
			if prefix == "" || ags.HasPrefix(r.Code, prefix) {
				rows = append(rows, r)
			}
		}
		set.years = append(set.years, pipeline.YearResult{Year: y.Year, IndicatorYear: y.IndicatorYear, Rows: rows})
	}
	for _, d := range res.Deltas {
		if prefix == "" || ags.HasPrefix(d.Code, prefix) {
			set.deltas = append(set.deltas, d)
		}
	}
	return set
}

func (w *Writer) name(code string) string {
	return w.districts[code].Name
}

func flagList(flags []model.Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, "|")
}

// rowFlags merges the flags of a row and both of its metrics, deduplicated.
func rowFlags(r model.DistrictYear) []model.Flag {
	var out []model.Flag
	seen := make(map[model.Flag]bool)
	for _, fs := range [][]model.Flag{r.X.Flags, r.Y.Flags, r.Flags} {
		for _, f := range fs {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func deltaFlags(d model.DistrictDelta) []model.Flag {
	var out []model.Flag
	seen := make(map[model.Flag]bool)
	for _, fs := range [][]model.Flag{d.X.Flags, d.Y.Flags} {
		for _, f := range fs {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// valueAny is a Value as a JSON/SQL scalar; undefined becomes nil.
func valueAny(v model.Value) any {
	if f, ok := v.Float(); ok {
		return f
	}
	return nil
}
