package export

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cjdb-export/internal/config"
	"github.com/sells-group/cjdb-export/internal/geometry"
	"github.com/sells-group/cjdb-export/internal/tileindex"
)

func buildingMapping() config.TableMapping {
	return config.TableMapping{
		Schema: "public",
		Table:  "building",
		Field: config.FieldMapping{
			PK:           "ogc_fid",
			CityObjectID: "identificatie",
			Geometry:     config.GeometryField{Column: "wkb_geometry"},
			Exclude:      []string{"xml"},
		},
	}
}

func expectIntrospection(mock pgxmock.PgxPoolIface, columns ...string) {
	rows := pgxmock.NewRows([]string{"column_name"})
	for _, c := range columns {
		rows.AddRow(c)
	}
	mock.ExpectQuery("information_schema.columns").
		WithArgs("public", "building").
		WillReturnRows(rows)
}

// squareDump is the five-point dump of a closed unit square, PostGIS path
// numbering (1-based).
func squareDump(rows *pgxmock.Rows, fid any) {
	pts := [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {0, 0, 0}}
	for i, p := range pts {
		rows.AddRow(fid, 1, 1, i+1, p[0], p[1], p[2])
	}
}

func TestSource_Fetch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectIntrospection(mock, "ogc_fid", "identificatie", "wkb_geometry", "height", "xml")

	mock.ExpectQuery(`SELECT "ogc_fid", "identificatie", "height" FROM "public"."building"`).
		WillReturnRows(pgxmock.NewRows([]string{"ogc_fid", "identificatie", "height"}).
			AddRow(int64(1), "B1", 10.5).
			AddRow(int64(2), "B2", nil))

	dump := pgxmock.NewRows([]string{"fid", "p1", "p2", "p3", "x", "y", "z"})
	squareDump(dump, int64(1))
	mock.ExpectQuery("ST_DumpPoints").WillReturnRows(dump)

	s := NewSource(mock, buildingMapping())
	features, err := s.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "1", features[0].PK)
	assert.Equal(t, "B1", features[0].ID)
	assert.Equal(t, map[string]any{"height": 10.5}, features[0].Attributes)

	pts := features[0].Geom.Points["wkb_geometry"]
	require.Len(t, pts, 5)
	assert.Equal(t, geometry.DumpPoint{Part: 0, Ring: 0, Vertex: 1, X: 0, Y: 0, Z: 0}, pts[0])
	assert.Equal(t, 5, pts[4].Vertex)

	assert.Empty(t, features[1].Geom.Points["wkb_geometry"], "no dumped points for B2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_Fetch_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectIntrospection(mock, "ogc_fid", "identificatie", "wkb_geometry")
	mock.ExpectQuery(`FROM "public"."building"`).
		WillReturnRows(pgxmock.NewRows([]string{"ogc_fid", "identificatie"}))

	s := NewSource(mock, buildingMapping())
	features, err := s.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, features, "no features, no point pass")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_Fetch_LoDAndSemantics(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	table := buildingMapping()
	table.Field.LoD = "lod_value"
	table.Field.Semantics = "surface_codes"

	expectIntrospection(mock, "ogc_fid", "identificatie", "wkb_geometry", "lod_value", "surface_codes")

	mock.ExpectQuery(`SELECT "ogc_fid", "identificatie", "lod_value", "surface_codes" FROM`).
		WillReturnRows(pgxmock.NewRows([]string{"ogc_fid", "identificatie", "lod_value", "surface_codes"}).
			AddRow(int64(1), "B1", "2.2", []int32{0, 1}))

	dump := pgxmock.NewRows([]string{"fid", "p1", "p2", "p3", "x", "y", "z"})
	squareDump(dump, int64(1))
	mock.ExpectQuery("ST_DumpPoints").WillReturnRows(dump)

	s := NewSource(mock, table)
	features, err := s.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "2.2", features[0].Geom.LoDOverride)
	assert.Equal(t, []int{0, 1}, features[0].Geom.Semantics)
	assert.Empty(t, features[0].Attributes, "reserved columns stay out of attributes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_Fetch_BBoxFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectIntrospection(mock, "ogc_fid", "identificatie", "wkb_geometry")

	mock.ExpectQuery(`WHERE ST_3DIntersects\("wkb_geometry", ST_MakeEnvelope`).
		WithArgs(0.0, 0.0, 100.0, 100.0).
		WillReturnRows(pgxmock.NewRows([]string{"ogc_fid", "identificatie"}).AddRow(int64(1), "B1"))

	dump := pgxmock.NewRows([]string{"fid", "p1", "p2", "p3", "x", "y", "z"})
	squareDump(dump, int64(1))
	mock.ExpectQuery("ST_DumpPoints").
		WithArgs(0.0, 0.0, 100.0, 100.0).
		WillReturnRows(dump)

	extent, err := tileindex.FromBBox(0, 0, 100, 100)
	require.NoError(t, err)

	s := NewSource(mock, buildingMapping())
	features, err := s.Fetch(context.Background(), &Filter{Extent: extent, SRID: 7415})
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToIntSlice(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []int
		ok   bool
	}{
		{"nil", nil, nil, true},
		{"int32", []int32{1, 2}, []int{1, 2}, true},
		{"int64", []int64{3}, []int{3}, true},
		{"any ints", []any{int32(4), int64(5)}, []int{4, 5}, true},
		{"strings", []any{"x"}, nil, false},
		{"scalar", 7, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toIntSlice(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "42", formatKey(int64(42)))
	assert.Equal(t, "abc", formatKey("abc"))
	assert.Equal(t, "1.5", formatKey(1.5))
	assert.Equal(t, "", formatKey(nil))
}
