package gpkg

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

const geometryColumn = "geom"

// WriteLayer creates (or replaces) a feature table and inserts features in
// one transaction.
func (d *DB) WriteLayer(ctx context.Context, layer Layer, features []Feature) error {
	if layer.Name == "" {
		return eris.New("gpkg: layer name is required")
	}
	if layer.GeometryType == "" {
		layer.GeometryType = "GEOMETRY"
	}
	if err := d.ensureSRS(ctx, srsFor(layer.SRSID)); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer func() { _ = tx.Rollback() }()

	table := quoteIdent(layer.Name)
	for _, stmt := range []string{
		`DELETE FROM gpkg_geometry_columns WHERE table_name = ?`,
		`DELETE FROM gpkg_contents WHERE table_name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, layer.Name); err != nil {
			return eris.Wrapf(err, "gpkg: clear metadata for %s", layer.Name)
		}
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return eris.Wrapf(err, "gpkg: drop %s", layer.Name)
	}

	cols := []string{
		"fid INTEGER PRIMARY KEY AUTOINCREMENT",
		quoteIdent(geometryColumn) + " " + layer.GeometryType,
	}
	for _, f := range layer.Fields {
		cols = append(cols, quoteIdent(f.Name)+" "+f.Type)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+table+" ("+strings.Join(cols, ", ")+")"); err != nil {
		return eris.Wrapf(err, "gpkg: create %s", layer.Name)
	}

	bounds := geom.NewBounds(geom.XY)
	for _, f := range features {
		if f.Geometry != nil && !f.Geometry.Empty() {
			bounds.Extend(f.Geometry)
		}
	}
	var minX, minY, maxX, maxY any
	if !bounds.IsEmpty() {
		minX, minY, maxX, maxY = bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO gpkg_contents
		(table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		layer.Name, layer.Name, minX, minY, maxX, maxY, layer.SRSID); err != nil {
		return eris.Wrapf(err, "gpkg: register %s", layer.Name)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO gpkg_geometry_columns
		(table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, ?, ?, ?, 0, 0)`,
		layer.Name, geometryColumn, layer.GeometryType, layer.SRSID); err != nil {
		return eris.Wrapf(err, "gpkg: register geometry column of %s", layer.Name)
	}

	names := []string{quoteIdent(geometryColumn)}
	marks := []string{"?"}
	for _, f := range layer.Fields {
		names = append(names, quoteIdent(f.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+
		" ("+strings.Join(names, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, f := range features {
		blob, err := EncodeGeometry(f.Geometry, layer.SRSID)
		if err != nil {
			return eris.Wrapf(err, "gpkg: feature %d", i)
		}
		args := make([]any, 0, len(layer.Fields)+1)
		args = append(args, blob)
		for _, fld := range layer.Fields {
			args = append(args, f.Properties[fld.Name])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert feature %d into %s", i, layer.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "gpkg: commit")
}

// ReadLayer returns a feature table's description and all its features.
// An empty name selects the first feature table.
func (d *DB) ReadLayer(ctx context.Context, name string) (Layer, []Feature, error) {
	if name == "" {
		layers, err := d.Layers(ctx)
		if err != nil {
			return Layer{}, nil, err
		}
		if len(layers) == 0 {
			return Layer{}, nil, eris.New("gpkg: no feature tables")
		}
		name = layers[0]
	}

	layer := Layer{Name: name}
	var geomCol string
	err := d.db.QueryRowContext(ctx, `SELECT column_name, geometry_type_name, srs_id
		FROM gpkg_geometry_columns WHERE table_name = ?`, name).
		Scan(&geomCol, &layer.GeometryType, &layer.SRSID)
	if err == sql.ErrNoRows {
		return Layer{}, nil, eris.Errorf("gpkg: layer %q not found", name)
	}
	if err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: describe %s", name)
	}

	rows, err := d.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: query %s", name)
	}
	defer rows.Close() //nolint:errcheck

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return Layer{}, nil, eris.Wrap(err, "gpkg: column types")
	}
	for _, ct := range colTypes {
		if ct.Name() == geomCol || ct.Name() == "fid" {
			continue
		}
		layer.Fields = append(layer.Fields, Field{Name: ct.Name(), Type: ct.DatabaseTypeName()})
	}

	var features []Feature
	for rows.Next() {
		vals := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Layer{}, nil, eris.Wrapf(err, "gpkg: scan %s", name)
		}

		f := Feature{Properties: make(map[string]any, len(colTypes))}
		for i, ct := range colTypes {
			switch ct.Name() {
			case geomCol:
				blob, ok := vals[i].([]byte)
				if !ok || len(blob) == 0 {
					continue
				}
				g, _, err := DecodeGeometry(blob)
				if err != nil {
					return Layer{}, nil, eris.Wrapf(err, "gpkg: feature %d of %s", len(features), name)
				}
				f.Geometry = g
			case "fid":
			default:
				v := vals[i]
				if b, ok := v.([]byte); ok {
					v = string(b)
				}
				f.Properties[ct.Name()] = v
			}
		}
		features = append(features, f)
	}
	return layer, features, eris.Wrapf(rows.Err(), "gpkg: read %s", name)
}
