package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// boundaryExts are the archive entries worth extracting from a boundary
// bundle. Shapefile sidecars travel with their .shp.
var boundaryExts = map[string]bool{
	".shp": true, ".shx": true, ".dbf": true, ".prj": true, ".cpg": true,
	".gpkg": true, ".geojson": true, ".json": true,
}

// readableExts rank the files a boundary bundle can be read from.
var readableExts = []string{".shp", ".gpkg", ".geojson", ".json"}

// ExtractBoundaries extracts the geodata entries of a boundary archive
// (BKG VG250 and similar) into destDir and returns the file to read.
// Documentation and other entries are skipped. Among readable files a name
// containing hint (case-insensitive) wins, so "krs" picks VG250_KRS.shp out
// of a bundle that also carries the LAN and GEM levels. An archive without
// any readable file returns "".
func ExtractBoundaries(zipPath, destDir, hint string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !boundaryExts[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		path, err := extractEntry(f, destDir)
		if err != nil {
			return "", err
		}
		extracted = append(extracted, path)
	}
	sort.Strings(extracted)
	return pickReadable(extracted, strings.ToLower(hint)), nil
}

func pickReadable(files []string, hint string) string {
	var fallback string
	for _, ext := range readableExts {
		for _, f := range files {
			if !strings.EqualFold(filepath.Ext(f), ext) {
				continue
			}
			if hint == "" || strings.Contains(strings.ToLower(filepath.Base(f)), hint) {
				return f
			}
			if fallback == "" {
				fallback = f
			}
		}
	}
	return fallback
}

// extractEntry writes one archive file below destDir, rejecting paths that
// escape it.
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return "", eris.Wrapf(err, "zip: write %s", f.Name)
	}
	return destPath, eris.Wrap(out.Close(), "zip: close file")
}
