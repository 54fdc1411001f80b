// Package geometry reconstructs CityJSON boundary geometry from the flat
// vertex dump that PostGIS produces for a polygonal geometry value
// (ST_DumpPoints order: part, ring, vertex).
package geometry

// Vertex is an (x, y, z) coordinate triple. It has no identity beyond its
// position.
type Vertex [3]float64

// Ring is an ordered vertex sequence, implicitly closed. The stored form
// omits the duplicated closing vertex, so len(Ring) >= 3 always holds for an
// assembled ring.
type Ring []Vertex

// Surface is an ordered ring sequence: ring 0 is the exterior boundary, the
// rest are holes.
type Surface []Ring

// GeometryType tags the requested boundary nesting.
type GeometryType string

const (
	MultiSurface     GeometryType = "MultiSurface"
	CompositeSurface GeometryType = "CompositeSurface"
	Solid            GeometryType = "Solid"
)

// Valid reports whether t is one of the supported geometry types.
func (t GeometryType) Valid() bool {
	switch t {
	case MultiSurface, CompositeSurface, Solid:
		return true
	}
	return false
}

// DumpPoint is one row of the database-side point dump for one feature's
// geometry column. Part and Ring are 0-based (ring 0 is the exterior of its
// part), Vertex is 1-based with the first vertex duplicated at the end of a
// closed ring, matching the Simple Features representation.
type DumpPoint struct {
	Part   int
	Ring   int
	Vertex int
	X      float64
	Y      float64
	Z      float64
}

// Boundary is the geometry-type-dependent nesting of surfaces. Exactly one
// of Surfaces or Shells is populated: MultiSurface and CompositeSurface use
// the flat Surfaces list, Solid wraps the same surfaces one level deeper in
// Shells. The two forms are deliberately distinct fields so that a Solid can
// never be emitted with MultiSurface nesting.
type Boundary struct {
	Type     GeometryType
	Surfaces []Surface
	Shells   [][]Surface
}

// Empty reports whether the boundary contains no surfaces.
func (b Boundary) Empty() bool {
	return b.SurfaceCount() == 0
}

// SurfaceCount returns the number of surfaces in traversal order.
func (b Boundary) SurfaceCount() int {
	if b.Type == Solid {
		n := 0
		for _, shell := range b.Shells {
			n += len(shell)
		}
		return n
	}
	return len(b.Surfaces)
}

// Walk returns the surfaces of the boundary in traversal order, the same
// order semantic labels are aligned to.
func (b Boundary) Walk() []Surface {
	if b.Type == Solid {
		var out []Surface
		for _, shell := range b.Shells {
			out = append(out, shell...)
		}
		return out
	}
	return b.Surfaces
}

// Geometry is one assembled geometry of a feature: a boundary tagged with its
// resolved level of detail and, optionally, semantic surface labels.
type Geometry struct {
	LoD       string
	Boundary  Boundary
	Semantics *Semantics
}
