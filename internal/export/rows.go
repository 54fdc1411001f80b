package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cjdb-export/internal/config"
	"github.com/sells-group/cjdb-export/internal/db"
	"github.com/sells-group/cjdb-export/internal/geometry"
	"github.com/sells-group/cjdb-export/internal/tileindex"
)

// Feature is one raw feature row: its attributes plus the dumped points of
// every configured geometry column, ready for boundary assembly.
type Feature struct {
	PK         string
	ID         string
	Attributes map[string]any
	Geom       geometry.FeatureGeometry
}

// Filter scopes a fetch to a spatial extent. A nil filter or an "all" tiles
// extent fetches the whole table.
type Filter struct {
	Extent *tileindex.Extent
	Index  tileindex.TableRef
	SRID   int
}

// Source reads one mapped feature table.
type Source struct {
	pool   db.Pool
	table  config.TableMapping
	logger *zap.Logger
}

// NewSource creates a reader for one table mapping.
func NewSource(pool db.Pool, table config.TableMapping) *Source {
	return &Source{
		pool:  pool,
		table: table,
		logger: zap.L().With(
			zap.String("component", "export"),
			zap.String("table", table.Table),
		),
	}
}

// Name returns the schema-qualified source name for logs and skip records.
func (s *Source) Name() string {
	return s.schema() + "." + s.table.Table
}

func (s *Source) schema() string {
	if s.table.Schema == "" {
		return "public"
	}
	return s.table.Schema
}

func (s *Source) relation() string {
	return pgx.Identifier{s.schema(), s.table.Table}.Sanitize()
}

// Fetch reads all features matching the filter in primary key order. The
// attribute pass runs first, then one point dump pass per geometry column.
func (s *Source) Fetch(ctx context.Context, filter *Filter) ([]Feature, error) {
	attrCols, err := s.attributeColumns(ctx)
	if err != nil {
		return nil, err
	}

	features, byPK, err := s.fetchAttributes(ctx, attrCols, filter)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, nil
	}

	for _, gc := range s.table.Field.GeometryColumns() {
		if err := s.fetchPoints(ctx, gc, filter, byPK); err != nil {
			return nil, err
		}
	}
	return features, nil
}

// attributeColumns introspects the table and returns the columns exported as
// city object attributes: everything except the reserved and excluded ones.
func (s *Source) attributeColumns(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`,
		s.schema(), s.table.Table)
	if err != nil {
		return nil, eris.Wrapf(err, "export: introspect %s", s.Name())
	}
	defer rows.Close()

	reserved := s.reservedColumns()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "export: scan column name")
		}
		// geom_-prefixed columns are geometry aliases even when not mapped.
		if strings.HasPrefix(name, "geom_") {
			continue
		}
		if _, ok := reserved[name]; !ok {
			cols = append(cols, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "export: introspect %s", s.Name())
	}
	return cols, nil
}

func (s *Source) reservedColumns() map[string]struct{} {
	f := s.table.Field
	reserved := map[string]struct{}{f.PK: {}}
	if f.CityObjectID != "" {
		reserved[f.CityObjectID] = struct{}{}
	}
	if f.LoD != "" {
		reserved[f.LoD] = struct{}{}
	}
	if f.Semantics != "" {
		reserved[f.Semantics] = struct{}{}
	}
	for _, gc := range f.GeometryColumns() {
		reserved[gc.Column] = struct{}{}
	}
	for _, name := range f.Exclude {
		reserved[name] = struct{}{}
	}
	return reserved
}

// fetchAttributes runs the attribute pass and returns the features in pk
// order plus a pk lookup for the point passes.
func (s *Source) fetchAttributes(ctx context.Context, attrCols []string, filter *Filter) ([]Feature, map[string]*Feature, error) {
	f := s.table.Field
	selected := []string{f.PK, f.IDColumn()}
	if f.LoD != "" {
		selected = append(selected, f.LoD)
	}
	if f.Semantics != "" {
		selected = append(selected, f.Semantics)
	}
	fixed := len(selected)
	selected = append(selected, attrCols...)

	quoted := make([]string, len(selected))
	for i, c := range selected {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), s.relation())
	clause, args, err := s.filterClause(filter)
	if err != nil {
		return nil, nil, err
	}
	if clause != "" {
		query += " WHERE " + clause
	}
	query += fmt.Sprintf(" ORDER BY %s", pgx.Identifier{f.PK}.Sanitize())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "export: query attributes of %s", s.Name())
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, eris.Wrap(err, "export: read attribute row")
		}

		feat := Feature{
			PK:         formatKey(values[0]),
			ID:         formatKey(values[1]),
			Attributes: make(map[string]any, len(attrCols)),
			Geom:       geometry.FeatureGeometry{Points: make(map[string][]geometry.DumpPoint)},
		}
		next := 2
		if f.LoD != "" {
			feat.Geom.LoDOverride = formatLoD(values[next])
			next++
		}
		if f.Semantics != "" {
			codes, ok := toIntSlice(values[next])
			if !ok && values[next] != nil {
				return nil, nil, eris.Errorf("export: %s.%s is not an integer array", s.Name(), f.Semantics)
			}
			feat.Geom.Semantics = codes
			next++
		}
		for i, name := range attrCols {
			feat.Attributes[name] = values[fixed+i]
		}
		features = append(features, feat)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "export: query attributes of %s", s.Name())
	}

	byPK := make(map[string]*Feature, len(features))
	for i := range features {
		byPK[features[i].PK] = &features[i]
	}
	return features, byPK, nil
}

// fetchPoints dumps one geometry column into the features, streaming in
// (pk, path) order so ring assembly sees vertices in place.
func (s *Source) fetchPoints(ctx context.Context, gc config.GeometryColumn, filter *Filter, byPK map[string]*Feature) error {
	pk := pgx.Identifier{s.table.Field.PK}.Sanitize()
	col := pgx.Identifier{gc.Column}.Sanitize()

	inner := fmt.Sprintf("SELECT %s AS fid, ST_DumpPoints(%s) AS dp FROM %s", pk, col, s.relation())
	clause, args, err := s.filterClause(filter)
	if err != nil {
		return err
	}
	if clause != "" {
		inner += " WHERE " + clause
	}

	query := fmt.Sprintf(
		`SELECT fid, (dp).path[1], (dp).path[2], (dp).path[3],
		 ST_X((dp).geom), ST_Y((dp).geom), COALESCE(ST_Z((dp).geom), 0)
		 FROM (%s) d ORDER BY fid, (dp).path`, inner)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "export: dump %s of %s", gc.Column, s.Name())
	}
	defer rows.Close()

	for rows.Next() {
		var fid any
		var part, ring, vertex int
		var x, y, z float64
		if err := rows.Scan(&fid, &part, &ring, &vertex, &x, &y, &z); err != nil {
			return eris.Wrap(err, "export: scan dumped point")
		}

		feat, ok := byPK[formatKey(fid)]
		if !ok {
			continue
		}
		feat.Geom.Points[gc.Key] = append(feat.Geom.Points[gc.Key], geometry.DumpPoint{
			Part:   part - 1,
			Ring:   ring - 1,
			Vertex: vertex,
			X:      x, Y: y, Z: z,
		})
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "export: dump %s of %s", gc.Column, s.Name())
	}
	return nil
}

// filterClause renders the filter against this source's first geometry
// column, which is the footprint every extent test runs on.
func (s *Source) filterClause(filter *Filter) (string, []any, error) {
	if filter == nil || filter.Extent == nil {
		return "", nil, nil
	}
	cols := s.table.Field.GeometryColumns()
	geomCol := pgx.Identifier{cols[0].Column}.Sanitize()
	return filter.Extent.Predicate(geomCol, filter.SRID, filter.Index)
}

// formatKey renders a primary key or identifier value as a stable string.
func formatKey(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case []byte:
		return string(k)
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(k), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// formatLoD renders a per-record LoD override, which may be stored as text
// or numeric.
func formatLoD(v any) string {
	switch l := v.(type) {
	case nil:
		return ""
	case string:
		return l
	case float64:
		return strconv.FormatFloat(l, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(l), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", l)
	}
}

// toIntSlice coerces the array representations pgx may hand back for an
// integer array column.
func toIntSlice(v any) ([]int, bool) {
	switch a := v.(type) {
	case nil:
		return nil, true
	case []int:
		return a, true
	case []int16:
		out := make([]int, len(a))
		for i, n := range a {
			out[i] = int(n)
		}
		return out, true
	case []int32:
		out := make([]int, len(a))
		for i, n := range a {
			out[i] = int(n)
		}
		return out, true
	case []int64:
		out := make([]int, len(a))
		for i, n := range a {
			out[i] = int(n)
		}
		return out, true
	case []any:
		out := make([]int, len(a))
		for i, e := range a {
			switch n := e.(type) {
			case int16:
				out[i] = int(n)
			case int32:
				out[i] = int(n)
			case int64:
				out[i] = int(n)
			case int:
				out[i] = n
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}
