package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLoD(t *testing.T) {
	tests := []struct {
		name                     string
		override, column, global string
		want                     string
	}{
		{"object override wins", "2.2", "2", "1", "2.2"},
		{"column beats global", "", "2", "1", "2"},
		{"global fallback", "", "", "1", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLoD(tt.override, tt.column, tt.global))
		})
	}
}

func TestParseLoDKey(t *testing.T) {
	assert.Equal(t, "1", ParseLoDKey("lod1"))
	assert.Equal(t, "2.2", ParseLoDKey("lod2.2"))
	assert.Equal(t, "", ParseLoDKey("geom"))
}

func TestAssembler_OneGeometryPerLoD(t *testing.T) {
	a := &Assembler{
		Columns: []LoDColumn{
			{Key: "lod1", LoD: "1", Type: MultiSurface},
			{Key: "lod2", LoD: "2", Type: Solid},
		},
		DefaultLoD: "1",
	}
	fg := FeatureGeometry{
		Points: map[string][]DumpPoint{
			"lod1": closedSquare(0, 0),
			"lod2": append(closedSquare(0, 0), closedSquare(1, 0)...),
		},
	}

	geoms, err := a.Assemble(fg)
	require.NoError(t, err)
	require.Len(t, geoms, 2)

	assert.Equal(t, "1", geoms[0].LoD)
	assert.Equal(t, MultiSurface, geoms[0].Boundary.Type)
	assert.Equal(t, "2", geoms[1].LoD)
	assert.Equal(t, Solid, geoms[1].Boundary.Type)
	assert.Len(t, geoms[1].Boundary.Shells, 1)
}

func TestAssembler_SingleLoDMode(t *testing.T) {
	a := &Assembler{
		Columns: []LoDColumn{
			{Key: "lod1", LoD: "1", Type: MultiSurface},
			{Key: "lod2", LoD: "2", Type: MultiSurface},
		},
		SingleLoD: "2",
	}
	fg := FeatureGeometry{
		Points: map[string][]DumpPoint{
			"lod1": closedSquare(0, 0),
			"lod2": closedSquare(0, 0),
		},
	}

	geoms, err := a.Assemble(fg)
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	assert.Equal(t, "2", geoms[0].LoD)
}

func TestAssembler_LoDOverrideFromObject(t *testing.T) {
	a := &Assembler{
		Columns:    []LoDColumn{{Key: "lod1", Type: MultiSurface}},
		DefaultLoD: "1",
	}
	fg := FeatureGeometry{
		Points:      map[string][]DumpPoint{"lod1": closedSquare(0, 0)},
		LoDOverride: "1.3",
	}

	geoms, err := a.Assemble(fg)
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	assert.Equal(t, "1.3", geoms[0].LoD)
}

func TestAssembler_SemanticsAttachedAtLoD2(t *testing.T) {
	a := &Assembler{
		Columns: []LoDColumn{{Key: "lod2", LoD: "2", Type: MultiSurface}},
		Mapping: testMapping,
	}
	fg := FeatureGeometry{
		Points:    map[string][]DumpPoint{"lod2": append(closedSquare(0, 0), closedSquare(1, 0)...)},
		Semantics: []int{0, 2},
	}

	geoms, err := a.Assemble(fg)
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	require.NotNil(t, geoms[0].Semantics)
	assert.Equal(t, []string{"GroundSurface", "WallSurface"}, geoms[0].Semantics.Names)
}

func TestAssembler_NoSemanticsBelowLoD2(t *testing.T) {
	a := &Assembler{
		Columns: []LoDColumn{{Key: "lod1", LoD: "1", Type: MultiSurface}},
		Mapping: testMapping,
	}
	fg := FeatureGeometry{
		Points:    map[string][]DumpPoint{"lod1": closedSquare(0, 0)},
		Semantics: []int{0},
	}

	geoms, err := a.Assemble(fg)
	require.NoError(t, err)
	assert.Nil(t, geoms[0].Semantics)
}

func TestAssembler_SemanticsFailureKeepsBoundary(t *testing.T) {
	a := &Assembler{
		Columns: []LoDColumn{{Key: "lod2", LoD: "2", Type: MultiSurface}},
		Mapping: testMapping,
	}
	fg := FeatureGeometry{
		Points:    map[string][]DumpPoint{"lod2": closedSquare(0, 0)},
		Semantics: []int{0, 1, 2}, // wrong length
	}

	geoms, err := a.Assemble(fg)
	require.Error(t, err, "semantics mismatch must be reported")
	require.Len(t, geoms, 1)
	assert.Nil(t, geoms[0].Semantics)
	assert.False(t, geoms[0].Boundary.Empty())
}

func TestAssembler_EmptyDumpKeptAsEmptyBoundary(t *testing.T) {
	a := &Assembler{
		Columns: []LoDColumn{{Key: "lod1", LoD: "1", Type: MultiSurface}},
	}

	geoms, err := a.Assemble(FeatureGeometry{Points: map[string][]DumpPoint{}})
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	assert.True(t, geoms[0].Boundary.Empty())
}
