package tileindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cjdb-export/internal/db"
)

// TableRef names a schema-qualified table.
type TableRef struct {
	Schema string
	Table  string
}

// Qualified returns the sanitized schema-qualified name for SQL text.
func (t TableRef) Qualified() string {
	return pgx.Identifier{t.Schema, t.Table}.Sanitize()
}

// Store persists and queries the tile index table.
type Store struct {
	pool   db.Pool
	table  TableRef
	srid   int
	logger *zap.Logger
}

// NewStore creates a tile index store over the given table.
func NewStore(pool db.Pool, table TableRef, srid int) *Store {
	return &Store{
		pool:   pool,
		table:  table,
		srid:   srid,
		logger: zap.L().With(zap.String("component", "tileindex")),
	}
}

// Table returns the store's table reference.
func (s *Store) Table() TableRef { return s.table }

// Create creates the tile index table, and its schema when missing. With
// drop set, an existing table is dropped first so the index can be rebuilt
// from scratch.
func (s *Store) Create(ctx context.Context, drop bool) error {
	schema := pgx.Identifier{s.table.Schema}.Sanitize()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return eris.Wrapf(err, "tileindex: create schema %s", s.table.Schema)
	}

	if drop {
		s.logger.Info("dropping existing tile index", zap.String("table", s.table.Qualified()))
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", s.table.Qualified())); err != nil {
			return eris.Wrapf(err, "tileindex: drop table %s", s.table.Qualified())
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		id text PRIMARY KEY,
		geom geometry(POLYGON, %d) NOT NULL,
		grid_col integer NOT NULL,
		grid_row integer NOT NULL,
		morton_rank bigint NOT NULL
	)`, s.table.Qualified(), s.srid)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "tileindex: create table %s", s.table.Qualified())
	}
	return nil
}

// Insert writes the indexed cells in one transaction: the rows are staged
// into a temp table via COPY with the cell rectangle as EWKT, then inserted
// with a server-side geometry cast. Cells must already carry rank and id.
func (s *Store) Insert(ctx context.Context, cells []Cell) error {
	if len(cells) == 0 {
		return nil
	}
	for _, c := range cells {
		if c.ID == "" {
			return eris.Errorf("tileindex: cell (%d,%d) has no id, index it first", c.Column, c.Row)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "tileindex: begin insert")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `CREATE TEMP TABLE tile_stage (
		id text,
		ewkt text,
		grid_col integer,
		grid_row integer,
		morton_rank bigint
	) ON COMMIT DROP`)
	if err != nil {
		return eris.Wrap(err, "tileindex: create staging table")
	}

	rows := make([][]any, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []any{c.ID, s.cellEWKT(c), c.Column, c.Row, int64(c.Rank)})
	}
	_, err = db.CopyFromSchema(ctx, tx, "pg_temp", "tile_stage",
		[]string{"id", "ewkt", "grid_col", "grid_row", "morton_rank"}, rows)
	if err != nil {
		return eris.Wrap(err, "tileindex: copy cells")
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, geom, grid_col, grid_row, morton_rank)
		SELECT id, ST_GeomFromEWKT(ewkt), grid_col, grid_row, morton_rank
		FROM tile_stage`, s.table.Qualified())
	if _, err := tx.Exec(ctx, insert); err != nil {
		return eris.Wrap(err, "tileindex: insert cells")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "tileindex: commit insert")
	}
	s.logger.Info("tile index written",
		zap.String("table", s.table.Qualified()),
		zap.Int("tiles", len(cells)))
	return nil
}

// CreateSpatialIndex adds a GiST index on the tile geometries.
func (s *Store) CreateSpatialIndex(ctx context.Context) error {
	name := pgx.Identifier{fmt.Sprintf("%s_geom_idx", s.table.Table)}.Sanitize()
	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gist (geom)", name, s.table.Qualified())
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return eris.Wrapf(err, "tileindex: create spatial index on %s", s.table.Qualified())
	}
	return nil
}

// ResolveTiles validates the requested tile ids against the index. The
// sentinel "all" (case-insensitive) anywhere in the request resolves to
// every tile in rank order. Unknown ids are logged and skipped; it is an
// error when none of the requested ids exist.
func (s *Store) ResolveTiles(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, eris.New("tileindex: no tiles requested")
	}

	all := false
	for _, id := range requested {
		if strings.EqualFold(id, AllTiles) {
			all = true
			break
		}
	}

	var (
		rows pgx.Rows
		err  error
	)
	if all {
		rows, err = s.pool.Query(ctx,
			fmt.Sprintf("SELECT id FROM %s ORDER BY morton_rank", s.table.Qualified()))
	} else {
		rows, err = s.pool.Query(ctx,
			fmt.Sprintf("SELECT id FROM %s WHERE id = ANY($1) ORDER BY morton_rank", s.table.Qualified()),
			requested)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tileindex: resolve tiles in %s", s.table.Qualified())
	}
	defer rows.Close()

	found := make([]string, 0, len(requested))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "tileindex: scan tile id")
		}
		found = append(found, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "tileindex: read tile ids")
	}

	if all {
		if len(found) == 0 {
			return nil, eris.Errorf("tileindex: %s is empty", s.table.Qualified())
		}
		return found, nil
	}

	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := known[id]; !ok {
			s.logger.Warn("tile id not in index, skipping", zap.String("tile", id))
		}
	}
	if len(found) == 0 {
		return nil, eris.Errorf("tileindex: none of the requested tiles exist in %s", s.table.Qualified())
	}
	return found, nil
}

// cellEWKT renders a cell rectangle as a closed EWKT polygon.
func (s *Store) cellEWKT(c Cell) string {
	return fmt.Sprintf("SRID=%d;POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
		s.srid,
		c.MinX, c.MinY,
		c.MaxX, c.MinY,
		c.MaxX, c.MaxY,
		c.MinX, c.MaxY,
		c.MinX, c.MinY,
	)
}
