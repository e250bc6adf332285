package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/airmap/internal/db"
	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent Migrate calls.
const migrationLockID = 7305841

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	schema  string
	closeFn func()
	log     *zap.Logger
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, schema string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(4), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := newPostgresStore(pool, schema)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool, schema string) *PostgresStore {
	if schema == "" {
		schema = DefaultSchema
	}
	return &PostgresStore{
		pool:   pool,
		schema: schema,
		log:    zap.L().With(zap.String("component", "store")),
	}
}

// table returns the schema-qualified table name.
func (s *PostgresStore) table(name string) string {
	return s.schema + "." + name
}

func (s *PostgresStore) ident(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Migrate creates the schema and applies every embedded migration not yet
// recorded in schema_migrations, in file name order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			s.log.Warn("postgres: release migration lock", zap.Error(err))
		}
	}()

	schema := pgx.Identifier{s.schema}.Sanitize()
	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema+
		"; CREATE TABLE IF NOT EXISTS "+s.ident("schema_migrations")+
		" (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())"); err != nil {
		return eris.Wrap(err, "postgres: create migration table")
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migrations")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}
		sql := strings.ReplaceAll(string(data), "{{schema}}", schema)
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO "+s.ident("schema_migrations")+" (filename) VALUES ($1)", name); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
		s.log.Info("postgres: migration applied", zap.String("file", name), zap.String("schema", s.schema))
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM "+s.ident("schema_migrations"))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

var districtColumns = []string{"code", "name", "epsg", "geom"}

var yearColumns = []string{
	"run_id", "code", "year", "indicator_year",
	"x_value", "x_provenance", "x_sources",
	"y_value", "y_provenance", "y_sources",
	"y_bin", "x_bin", "class", "breaks_policy", "flags",
}

var deltaColumns = []string{
	"run_id", "code",
	"x_first", "x_last", "x_abs_delta", "x_pct_delta", "x_direction",
	"y_first", "y_last", "y_abs_delta", "y_pct_delta", "y_direction",
	"delta_class", "policy", "flags",
}

// SaveRun stores a completed run in one transaction, so a failed write
// leaves no run row behind. District geometries are upserted by code so
// repeated runs over the same boundaries share one copy.
func (s *PostgresStore) SaveRun(ctx context.Context, res *pipeline.Result, districts []model.District) error {
	if res == nil {
		return eris.New("postgres: nil result")
	}
	summaryJSON, err := json.Marshal(res.Summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	cfg := res.Config
	rows, err := districtRows(districts, cfg.EPSG)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "INSERT INTO "+s.ident("runs")+
		` (id, started_at, finished_at, years, first_year, last_year, component, x_name, y_name, epsg, breaks_policy, delta_policy, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		res.RunID, res.StartedAt, res.FinishedAt, cfg.Years, cfg.FirstYear, cfg.LastYear,
		cfg.Component, cfg.XName, cfg.YName, cfg.EPSG, string(cfg.Breaks), res.DeltaPolicy, summaryJSON,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", res.RunID)
	}

	if _, err := db.UpsertTx(ctx, tx, db.UpsertConfig{
		Table:        s.table("districts"),
		Columns:      districtColumns,
		ConflictKeys: []string{"code"},
	}, rows); err != nil {
		return eris.Wrap(err, "postgres: upsert districts")
	}

	nYears, err := db.CopyFrom(ctx, tx, s.table("district_years"), yearColumns, yearRows(res), 0)
	if err != nil {
		return eris.Wrap(err, "postgres: copy district years")
	}
	nDeltas, err := db.CopyFrom(ctx, tx, s.table("district_deltas"), deltaColumns, deltaRows(res), 0)
	if err != nil {
		return eris.Wrap(err, "postgres: copy district deltas")
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit run %s", res.RunID)
	}

	s.log.Info("postgres: run saved",
		zap.String("run_id", res.RunID),
		zap.Int("districts", len(rows)),
		zap.Int64("district_years", nYears),
		zap.Int64("district_deltas", nDeltas),
	)
	return nil
}

// LatestRun returns the most recently started run, or nil.
func (s *PostgresStore) LatestRun(ctx context.Context) (*RunRecord, error) {
	var r RunRecord
	var summaryJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT id, started_at, finished_at, years, first_year, last_year,
		component, breaks_policy, COALESCE(delta_policy, ''), summary FROM `+s.ident("runs")+
		` ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Years, &r.FirstYear, &r.LastYear,
			&r.Component, &r.BreaksPolicy, &r.DeltaPolicy, &summaryJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal summary")
	}
	return &r, nil
}

func districtRows(districts []model.District, epsg int) ([][]any, error) {
	rows := make([][]any, 0, len(districts))
	for _, d := range districts {
		if d.Geometry == nil {
			continue
		}
		g := d.Geometry.Clone().SetSRID(epsg)
		data, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: encode geometry of %s", d.Code)
		}
		rows = append(rows, []any{d.Code, d.Name, epsg, data})
	}
	return rows, nil
}

func yearRows(res *pipeline.Result) [][]any {
	var rows [][]any
	for _, y := range res.Years {
		if y.Err != nil {
			continue
		}
		for _, r := range y.Rows {
			var yBin, xBin, class any
			if r.Class.Defined() {
				yBin, xBin, class = r.Class.Y, r.Class.X, r.Class.Label()
			}
			rows = append(rows, []any{
				res.RunID, r.Code, r.Year, nullInt(y.IndicatorYear),
				nullFloat(r.X.Value), string(r.X.Provenance), r.X.SourceCount,
				nullFloat(r.Y.Value), string(r.Y.Provenance), r.Y.SourceCount,
				yBin, xBin, class, string(r.BreaksPolicy), flagStrings(r.Flags, r.X.Flags, r.Y.Flags),
			})
		}
	}
	return rows
}

func deltaRows(res *pipeline.Result) [][]any {
	rows := make([][]any, 0, len(res.Deltas))
	for _, d := range res.Deltas {
		var class any
		if d.Class.Defined() {
			class = d.Class.Label()
		}
		rows = append(rows, []any{
			res.RunID, d.Code,
			nullFloat(d.X.First), nullFloat(d.X.Last), nullFloat(d.X.Absolute), nullFloat(d.X.Percent), nullDirection(d.X.Direction),
			nullFloat(d.Y.First), nullFloat(d.Y.Last), nullFloat(d.Y.Absolute), nullFloat(d.Y.Percent), nullDirection(d.Y.Direction),
			class, d.Policy, flagStrings(d.X.Flags, d.Y.Flags),
		})
	}
	return rows
}

func nullFloat(v model.Value) any {
	if f, ok := v.Float(); ok {
		return f
	}
	return nil
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullDirection(d model.Direction) any {
	if d == model.DirectionUndefined {
		return nil
	}
	return d.String()
}

func flagStrings(sets ...[]model.Flag) []string {
	out := []string{}
	seen := make(map[model.Flag]bool)
	for _, fs := range sets {
		for _, f := range fs {
			if !seen[f] {
				seen[f] = true
				out = append(out, string(f))
			}
		}
	}
	return out
}
