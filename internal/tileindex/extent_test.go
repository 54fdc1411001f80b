package tileindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBBox(t *testing.T) {
	e, err := FromBBox(0, 0, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, ExtentBBox, e.Kind())

	_, err = FromBBox(100, 0, 0, 50)
	assert.ErrorIs(t, err, ErrInvalidExtent)
	_, err = FromBBox(0, 0, 100, 0)
	assert.ErrorIs(t, err, ErrInvalidExtent)
}

func TestExtent_All(t *testing.T) {
	assert.True(t, FromTiles([]string{"01", "ALL"}).All())
	assert.True(t, FromTiles([]string{"all"}).All())
	assert.False(t, FromTiles([]string{"01", "02"}).All())

	bbox, err := FromBBox(0, 0, 1, 1)
	require.NoError(t, err)
	assert.False(t, bbox.All())
}

func TestExtent_Predicate_BBox(t *testing.T) {
	e, err := FromBBox(1, 2, 3, 4)
	require.NoError(t, err)

	clause, args, err := e.Predicate("g.wkb_geometry", 7415, TableRef{})
	require.NoError(t, err)
	assert.Equal(t,
		"ST_3DIntersects(g.wkb_geometry, ST_MakeEnvelope($1, $2, $3, $4, 7415))",
		clause)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0}, args)
}

func TestExtent_Predicate_Polygon(t *testing.T) {
	e, err := FromPolygon(rectangle(t, 0, 0, 10, 10))
	require.NoError(t, err)

	clause, args, err := e.Predicate("geom", 7415, TableRef{})
	require.NoError(t, err)
	assert.Equal(t, "ST_3DIntersects(geom, ST_GeomFromEWKT($1))", clause)
	require.Len(t, args, 1)
	ewkt, ok := args[0].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(ewkt, "SRID=7415;POLYGON"), ewkt)
}

func TestExtent_Predicate_Tiles(t *testing.T) {
	idx := TableRef{Schema: "tiles", Table: "tile_index"}

	e := FromTiles([]string{"01", "02"})
	clause, args, err := e.Predicate("geom", 7415, idx)
	require.NoError(t, err)
	assert.Contains(t, clause, `FROM "tiles"."tile_index" WHERE id = ANY($1)`)
	assert.Equal(t, []any{[]string{"01", "02"}}, args)

	// The "all" sentinel disables filtering entirely.
	clause, args, err = FromTiles([]string{"all"}).Predicate("geom", 7415, idx)
	require.NoError(t, err)
	assert.Empty(t, clause)
	assert.Nil(t, args)
}

func TestReadGeoJSONPolygon(t *testing.T) {
	polygon := `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`

	tests := []struct {
		name  string
		input string
	}{
		{"bare geometry", polygon},
		{"feature", `{"type":"Feature","properties":{},"geometry":` + polygon + `}`},
		{"feature collection", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` + polygon + `}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ReadGeoJSONPolygon(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, 5, p.NumCoords())
			b := p.Bounds()
			assert.Equal(t, 10.0, b.Max(0))
		})
	}
}

func TestReadGeoJSONPolygon_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"point geometry", `{"type":"Point","coordinates":[0,0]}`},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`},
		{"not json", `extent.json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadGeoJSONPolygon(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestPolygonEWKT(t *testing.T) {
	ewkt, err := PolygonEWKT(rectangle(t, 0, 0, 1, 1), 28992)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ewkt, "SRID=28992;POLYGON"), ewkt)
	assert.Contains(t, ewkt, "0 0")
	assert.Contains(t, ewkt, "1 1")
}
