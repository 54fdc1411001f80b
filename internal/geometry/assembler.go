package geometry

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoDColumn declares one geometry column of a feature table: the level of
// detail it holds and the boundary type to build from it. LoD may be empty,
// in which case the per-object override or the global default applies.
type LoDColumn struct {
	Key  string // config key, e.g. "lod1" or "lod2.2"
	LoD  string
	Type GeometryType
}

// FeatureGeometry is one feature's raw geometry input: the point dump per
// configured LoD column, an optional per-object LoD override and the optional
// semantic label array.
type FeatureGeometry struct {
	Points      map[string][]DumpPoint // keyed by LoDColumn.Key
	LoDOverride string
	Semantics   []int
}

// Assembler runs the full ring-surface-boundary-semantics chain for one
// feature at a time. It is stateless across features and safe for concurrent
// use.
type Assembler struct {
	Columns    []LoDColumn
	DefaultLoD string
	Mapping    SemanticsMapping
	// SingleLoD, when set, retains only the geometry of the matching LoD in
	// the output sequence.
	SingleLoD string
}

// semanticsMinLoD is the lowest level of detail that carries semantic
// surfaces. Below it the geometry has no distinct wall/roof/ground faces to
// label.
const semanticsMinLoD = 2.0

// Assemble produces one geometry per configured LoD column. A missing or
// empty point dump yields an empty boundary for that LoD, which is kept in
// the output for the caller to act on. Semantics failures are logged and
// reported through the returned error slice-free policy: the geometry is kept
// without semantics and the first semantics error is returned alongside the
// geometries so the caller can record it.
func (a *Assembler) Assemble(fg FeatureGeometry) ([]Geometry, error) {
	var geoms []Geometry
	var semErr error

	for _, col := range a.Columns {
		lod := ResolveLoD(fg.LoDOverride, col.LoD, a.DefaultLoD)
		if a.SingleLoD != "" && lod != a.SingleLoD {
			continue
		}

		surfaces, err := AssembleSurfaces(fg.Points[col.Key])
		if err != nil {
			return nil, eris.Wrapf(err, "column %s", col.Key)
		}
		boundary, err := BuildBoundary(surfaces, col.Type)
		if err != nil {
			return nil, err
		}

		g := Geometry{LoD: lod, Boundary: boundary}
		if a.Mapping != nil && fg.Semantics != nil && !boundary.Empty() && lodAtLeast(lod, semanticsMinLoD) {
			sem, err := AttachSemantics(boundary, fg.Semantics, a.Mapping)
			if err != nil {
				// Recoverable: keep the boundary, drop the labels.
				zap.L().Warn("dropping semantics",
					zap.String("lod", lod),
					zap.Error(err),
				)
				if semErr == nil {
					semErr = err
				}
			} else {
				g.Semantics = sem
			}
		}
		geoms = append(geoms, g)
	}
	return geoms, semErr
}

// ResolveLoD applies the layered LoD configuration: an explicit per-object
// value overrides the per-column LoD, which overrides the global default.
func ResolveLoD(override, column, global string) string {
	if override != "" {
		return override
	}
	if column != "" {
		return column
	}
	return global
}

// ParseLoDKey extracts the LoD value from a geometry column key such as
// "lod1" or "lod2.2". An empty string is returned for keys without the lod
// prefix.
func ParseLoDKey(key string) string {
	if !strings.HasPrefix(key, "lod") {
		return ""
	}
	return key[len("lod"):]
}

func lodAtLeast(lod string, min float64) bool {
	f, err := strconv.ParseFloat(lod, 64)
	if err != nil {
		return false
	}
	return f >= min
}
