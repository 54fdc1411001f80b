package geometry

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// AssembleRings groups one polygon part's dump points into closed rings.
// Points carry a 0-based ring index (0 = exterior) and a 1-based vertex
// index. The Simple Features representation duplicates the first vertex at
// the end of every ring; that closing vertex is dropped, but only when it
// actually equals the first vertex. An upstream decoder that emits unclosed
// rings therefore passes through untouched.
//
// Rings with fewer than 3 distinct vertices, gaps in the ring numbering or
// non-finite coordinates fail with ErrMalformedGeometry.
func AssembleRings(points []DumpPoint) ([]Ring, error) {
	if len(points) == 0 {
		return nil, eris.Wrap(ErrMalformedGeometry, "no points in part")
	}

	grouped := make(map[int][]DumpPoint)
	maxRing := 0
	for _, p := range points {
		if p.Ring < 0 {
			return nil, eris.Wrapf(ErrMalformedGeometry, "negative ring index %d", p.Ring)
		}
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return nil, eris.Wrapf(ErrMalformedGeometry, "non-finite coordinate in ring %d vertex %d", p.Ring, p.Vertex)
		}
		if p.Ring > maxRing {
			maxRing = p.Ring
		}
		grouped[p.Ring] = append(grouped[p.Ring], p)
	}

	rings := make([]Ring, 0, maxRing+1)
	for idx := 0; idx <= maxRing; idx++ {
		pts, ok := grouped[idx]
		if !ok {
			return nil, eris.Wrapf(ErrMalformedGeometry, "gap in ring numbering at ring %d", idx)
		}
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Vertex < pts[j].Vertex })

		ring := make(Ring, 0, len(pts))
		for _, p := range pts {
			ring = append(ring, Vertex{p.X, p.Y, p.Z})
		}
		// Drop the duplicated closing vertex when the ring is closed.
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		if distinct(ring) < 3 {
			return nil, eris.Wrapf(ErrMalformedGeometry, "ring %d has fewer than 3 distinct vertices", idx)
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

// AssembleSurface turns the rings of one polygon part into a surface:
// ring 0 is the exterior, the rest are holes in ring order.
func AssembleSurface(rings []Ring) (Surface, error) {
	if len(rings) == 0 {
		return nil, eris.Wrap(ErrMalformedGeometry, "part has no exterior ring")
	}
	return Surface(rings), nil
}

// AssembleSurfaces groups a full feature dump by part and assembles one
// surface per part, in part order.
func AssembleSurfaces(points []DumpPoint) ([]Surface, error) {
	if len(points) == 0 {
		return nil, nil
	}

	grouped := make(map[int][]DumpPoint)
	maxPart := 0
	for _, p := range points {
		if p.Part < 0 {
			return nil, eris.Wrapf(ErrMalformedGeometry, "negative part index %d", p.Part)
		}
		if p.Part > maxPart {
			maxPart = p.Part
		}
		grouped[p.Part] = append(grouped[p.Part], p)
	}

	surfaces := make([]Surface, 0, maxPart+1)
	for idx := 0; idx <= maxPart; idx++ {
		pts, ok := grouped[idx]
		if !ok {
			return nil, eris.Wrapf(ErrMalformedGeometry, "gap in part numbering at part %d", idx)
		}
		rings, err := AssembleRings(pts)
		if err != nil {
			return nil, eris.Wrapf(err, "part %d", idx)
		}
		srf, err := AssembleSurface(rings)
		if err != nil {
			return nil, eris.Wrapf(err, "part %d", idx)
		}
		surfaces = append(surfaces, srf)
	}
	return surfaces, nil
}

// BuildBoundary wraps assembled surfaces in the nesting required by the
// geometry type. MultiSurface and CompositeSurface pass the surfaces through
// flat; Solid wraps them as a single shell. An empty surface list produces an
// empty boundary; callers decide via Boundary.Empty whether to emit the
// object without geometry or skip it.
func BuildBoundary(surfaces []Surface, t GeometryType) (Boundary, error) {
	if !t.Valid() {
		return Boundary{}, eris.Errorf("geometry: unsupported geometry type %q", t)
	}
	b := Boundary{Type: t}
	if len(surfaces) == 0 {
		return b, nil
	}
	if t == Solid {
		b.Shells = [][]Surface{surfaces}
	} else {
		b.Surfaces = surfaces
	}
	return b, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// distinct counts unique vertices in a ring.
func distinct(r Ring) int {
	seen := make(map[Vertex]struct{}, len(r))
	for _, v := range r {
		seen[v] = struct{}{}
	}
	return len(seen)
}
