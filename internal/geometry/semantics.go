package geometry

import "github.com/rotisserie/eris"

// SemanticsMapping resolves per-surface integer codes to CityJSON semantic
// surface type names, e.g. {0: "GroundSurface", 1: "RoofSurface"}.
type SemanticsMapping map[int]string

// Semantics holds the semantic surface labels of one boundary. Codes is the
// original per-surface code sequence from the database, Names the resolved
// type names, both aligned 1:1 with the boundary's surfaces in traversal
// order. Keeping the codes alongside the names preserves round-trippable
// indices for the exchange format's name-table encoding.
type Semantics struct {
	Codes []int
	Names []string
}

// Table builds the exchange form: a deduplicated surface-type table in
// first-appearance order and a per-surface index into it.
func (s *Semantics) Table() (surfaces []string, values []int) {
	index := make(map[string]int)
	values = make([]int, len(s.Names))
	for i, name := range s.Names {
		idx, ok := index[name]
		if !ok {
			idx = len(surfaces)
			surfaces = append(surfaces, name)
			index[name] = idx
		}
		values[i] = idx
	}
	return surfaces, values
}

// AttachSemantics zips the label codes with the boundary's surfaces in
// traversal order and resolves each code through the mapping. The boundary
// itself is never modified: on error the caller keeps the geometry and drops
// only the semantics.
func AttachSemantics(b Boundary, codes []int, mapping SemanticsMapping) (*Semantics, error) {
	if len(codes) != b.SurfaceCount() {
		return nil, eris.Wrapf(ErrSemanticsMismatch,
			"%d labels for %d surfaces", len(codes), b.SurfaceCount())
	}
	if b.Type == Solid && len(b.Shells) > 1 {
		return nil, eris.Wrap(ErrSemanticsMismatch, "cannot assign semantics to a solid with inner shells")
	}

	names := make([]string, len(codes))
	for i, code := range codes {
		name, ok := mapping[code]
		if !ok {
			return nil, eris.Wrapf(ErrSemanticsMapping, "code %d at surface %d", code, i)
		}
		names[i] = name
	}
	return &Semantics{Codes: codes, Names: names}, nil
}
