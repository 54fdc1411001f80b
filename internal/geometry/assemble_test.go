package geometry

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedSquare returns the dump of a unit-ish square ring with the first
// vertex duplicated at the end, as PostGIS emits it.
func closedSquare(part, ring int) []DumpPoint {
	return []DumpPoint{
		{Part: part, Ring: ring, Vertex: 1, X: 0, Y: 0, Z: 0},
		{Part: part, Ring: ring, Vertex: 2, X: 1, Y: 0, Z: 0},
		{Part: part, Ring: ring, Vertex: 3, X: 1, Y: 1, Z: 0},
		{Part: part, Ring: ring, Vertex: 4, X: 0, Y: 1, Z: 0},
		{Part: part, Ring: ring, Vertex: 5, X: 0, Y: 0, Z: 0},
	}
}

func TestAssembleRings_DropsClosingVertex(t *testing.T) {
	rings, err := AssembleRings(closedSquare(0, 0))
	require.NoError(t, err)
	require.Len(t, rings, 1)

	want := Ring{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	assert.Equal(t, want, rings[0])
	assert.NotEqual(t, rings[0][0], rings[0][len(rings[0])-1], "first and last vertex must be distinct")
}

func TestAssembleRings_UnclosedRingPassesThrough(t *testing.T) {
	// An upstream decoder that does not duplicate the closing vertex must not
	// lose a vertex to the removal rule.
	pts := closedSquare(0, 0)[:4]
	rings, err := AssembleRings(pts)
	require.NoError(t, err)
	assert.Len(t, rings[0], 4)
}

func TestAssembleRings_InteriorRings(t *testing.T) {
	pts := append(closedSquare(0, 0),
		DumpPoint{Ring: 1, Vertex: 1, X: 0.2, Y: 0.2},
		DumpPoint{Ring: 1, Vertex: 2, X: 0.8, Y: 0.2},
		DumpPoint{Ring: 1, Vertex: 3, X: 0.5, Y: 0.8},
		DumpPoint{Ring: 1, Vertex: 4, X: 0.2, Y: 0.2},
	)
	rings, err := AssembleRings(pts)
	require.NoError(t, err)
	require.Len(t, rings, 2)
	assert.Len(t, rings[1], 3)
}

func TestAssembleRings_Errors(t *testing.T) {
	tests := []struct {
		name string
		pts  []DumpPoint
	}{
		{
			name: "empty input",
			pts:  nil,
		},
		{
			name: "degenerate ring",
			pts: []DumpPoint{
				{Vertex: 1, X: 0, Y: 0},
				{Vertex: 2, X: 1, Y: 0},
				{Vertex: 3, X: 0, Y: 0},
			},
		},
		{
			name: "non-finite coordinate",
			pts: []DumpPoint{
				{Vertex: 1, X: 0, Y: 0},
				{Vertex: 2, X: math.NaN(), Y: 0},
				{Vertex: 3, X: 1, Y: 1},
				{Vertex: 4, X: 0, Y: 0},
			},
		},
		{
			name: "gap in ring numbering",
			pts: append(closedSquare(0, 0),
				DumpPoint{Ring: 2, Vertex: 1, X: 0.2, Y: 0.2},
				DumpPoint{Ring: 2, Vertex: 2, X: 0.8, Y: 0.2},
				DumpPoint{Ring: 2, Vertex: 3, X: 0.5, Y: 0.8},
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AssembleRings(tt.pts)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrMalformedGeometry))
		})
	}
}

func TestAssembleSurface_NoExterior(t *testing.T) {
	_, err := AssembleSurface(nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMalformedGeometry))
}

func TestAssembleSurfaces_MultiPart(t *testing.T) {
	pts := append(closedSquare(0, 0), func() []DumpPoint {
		second := closedSquare(1, 0)
		for i := range second {
			second[i].X += 2
		}
		return second
	}()...)

	surfaces, err := AssembleSurfaces(pts)
	require.NoError(t, err)
	require.Len(t, surfaces, 2)
	assert.Equal(t, Vertex{2, 0, 0}, surfaces[1][0][0])
}

func TestBuildBoundary_MultiSurfaceScenario(t *testing.T) {
	// Exterior-only square through the full chain.
	surfaces, err := AssembleSurfaces(closedSquare(0, 0))
	require.NoError(t, err)

	b, err := BuildBoundary(surfaces, MultiSurface)
	require.NoError(t, err)

	want := []Surface{{Ring{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}}}
	assert.Equal(t, want, b.Surfaces)
	assert.Nil(t, b.Shells)
	assert.Equal(t, 1, b.SurfaceCount())
}

func TestBuildBoundary_SolidSingleShellRoundTrip(t *testing.T) {
	pts := append(closedSquare(0, 0), closedSquare(1, 0)...)
	surfaces, err := AssembleSurfaces(pts)
	require.NoError(t, err)

	b, err := BuildBoundary(surfaces, Solid)
	require.NoError(t, err)

	require.Len(t, b.Shells, 1, "a solid wraps all surfaces in exactly one shell")
	assert.Equal(t, surfaces, b.Shells[0])
	assert.Nil(t, b.Surfaces)
	assert.Equal(t, 2, b.SurfaceCount())
	assert.Equal(t, surfaces, b.Walk())
}

func TestBuildBoundary_Empty(t *testing.T) {
	b, err := BuildBoundary(nil, Solid)
	require.NoError(t, err)
	assert.True(t, b.Empty())

	b, err = BuildBoundary(nil, MultiSurface)
	require.NoError(t, err)
	assert.True(t, b.Empty())
}

func TestBuildBoundary_UnsupportedType(t *testing.T) {
	_, err := BuildBoundary(nil, GeometryType("MultiPoint"))
	require.Error(t, err)
}
