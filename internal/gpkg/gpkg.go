// Package gpkg reads and writes OGC GeoPackage files through the pure-Go
// SQLite driver. Only feature tables with one geometry column are handled.
package gpkg

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"
)

// applicationID is "GPKG" as a big-endian int32.
const applicationID = 0x47504B47

const userVersion = 10200

// Field is a non-geometry column of a feature table.
type Field struct {
	Name string
	Type string // TEXT, INTEGER or REAL
}

// Layer describes a feature table.
type Layer struct {
	Name         string
	SRSID        int
	GeometryType string // e.g. MULTIPOLYGON
	Fields       []Field
}

// Feature is one row of a feature table.
type Feature struct {
	Geometry   geom.T
	Properties map[string]any
}

// DB is an open GeoPackage.
type DB struct {
	db *sql.DB
}

const metadataDDL = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER NOT NULL PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE IF NOT EXISTS gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

// Create makes a new GeoPackage at path, replacing any existing file.
func Create(ctx context.Context, path string) (*DB, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "gpkg: remove %s", path)
	}
	d, err := open(path)
	if err != nil {
		return nil, err
	}
	for _, stmt := range []string{
		"PRAGMA application_id = " + strconv.Itoa(applicationID),
		"PRAGMA user_version = " + strconv.Itoa(userVersion),
		metadataDDL,
	} {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			_ = d.db.Close()
			return nil, eris.Wrap(err, "gpkg: initialise metadata")
		}
	}
	for _, srs := range requiredSRS {
		if err := d.ensureSRS(ctx, srs); err != nil {
			_ = d.db.Close()
			return nil, err
		}
	}
	return d, nil
}

// Open opens an existing GeoPackage.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "gpkg: stat %s", path)
	}
	return open(path)
}

func open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	db.SetMaxOpenConns(1)
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) ensureSRS(ctx context.Context, s srs) error {
	_, err := d.db.ExecContext(ctx, `INSERT OR IGNORE INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.name, s.id, s.organization, s.orgID, s.definition, s.description)
	return eris.Wrapf(err, "gpkg: register srs %d", s.id)
}

// Layers returns the names of the feature tables, in gpkg_contents order.
func (d *DB) Layers(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: list layers")
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan layer name")
		}
		names = append(names, name)
	}
	return names, eris.Wrap(rows.Err(), "gpkg: list layers")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
