package cityjson

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cjdb-export/internal/geometry"
)

// Builder accumulates city objects into one document, deduplicating vertices
// into a shared pool quantized by the document transform. Not safe for
// concurrent use; each output document gets its own Builder.
type Builder struct {
	transform Transform
	metadata  Metadata
	objects   map[string]encodedObject
	index     map[[3]int64]int
	vertices  [][3]int64
}

// NewBuilder creates an empty document builder with the given transform.
func NewBuilder(transform Transform, metadata Metadata) *Builder {
	return &Builder{
		transform: transform,
		metadata:  metadata,
		objects:   make(map[string]encodedObject),
		index:     make(map[[3]int64]int),
	}
}

// Add encodes one city object into the document.
func (b *Builder) Add(co CityObject) error {
	if co.ID == "" {
		return eris.New("cityjson: city object without id")
	}
	geoms := make([]encodedGeometry, 0, len(co.Geometry))
	for _, g := range co.Geometry {
		eg, err := b.encodeGeometry(g)
		if err != nil {
			return eris.Wrapf(err, "object %s", co.ID)
		}
		geoms = append(geoms, eg)
	}
	b.objects[co.ID] = encodedObject{
		Type:       co.Type,
		Attributes: co.Attributes,
		Geometry:   geoms,
	}
	return nil
}

// Len returns the number of objects added so far.
func (b *Builder) Len() int { return len(b.objects) }

// MarshalDocument renders the accumulated objects as a compact CityJSON
// document.
func (b *Builder) MarshalDocument() ([]byte, error) {
	doc := document{
		Type:        "CityJSON",
		Version:     Version,
		Metadata:    &b.metadata,
		Transform:   b.transform,
		CityObjects: b.objects,
		Vertices:    b.vertices,
	}
	if doc.Vertices == nil {
		doc.Vertices = [][3]int64{}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "cityjson: marshal document")
	}
	return out, nil
}

// MarshalMetadata renders the header document written once per feature
// export: an empty CityJSON document carrying only the transform and CRS,
// shared by all subsequent CityJSONFeature records.
func MarshalMetadata(transform Transform, metadata Metadata) ([]byte, error) {
	doc := document{
		Type:        "CityJSON",
		Version:     Version,
		Metadata:    &metadata,
		Transform:   transform,
		CityObjects: map[string]encodedObject{},
		Vertices:    [][3]int64{},
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "cityjson: marshal metadata document")
	}
	return out, nil
}

// MarshalFeature renders one city object as a standalone CityJSONFeature
// with a local vertex pool, for line-delimited feature export.
func MarshalFeature(co CityObject, transform Transform) ([]byte, error) {
	b := NewBuilder(transform, Metadata{})
	if err := b.Add(co); err != nil {
		return nil, err
	}
	doc := featureDocument{
		Type:        "CityJSONFeature",
		ID:          co.ID,
		CityObjects: b.objects,
		Vertices:    b.vertices,
	}
	if doc.Vertices == nil {
		doc.Vertices = [][3]int64{}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrapf(err, "cityjson: marshal feature %s", co.ID)
	}
	return out, nil
}

type document struct {
	Type        string                   `json:"type"`
	Version     string                   `json:"version"`
	Metadata    *Metadata                `json:"metadata,omitempty"`
	Transform   Transform                `json:"transform"`
	CityObjects map[string]encodedObject `json:"CityObjects"`
	Vertices    [][3]int64               `json:"vertices"`
}

type featureDocument struct {
	Type        string                   `json:"type"`
	ID          string                   `json:"id"`
	CityObjects map[string]encodedObject `json:"CityObjects"`
	Vertices    [][3]int64               `json:"vertices"`
}

type encodedObject struct {
	Type       string            `json:"type"`
	Attributes map[string]Value  `json:"attributes,omitempty"`
	Geometry   []encodedGeometry `json:"geometry"`
}

type encodedGeometry struct {
	Type       string            `json:"type"`
	LoD        string            `json:"lod"`
	Boundaries any               `json:"boundaries"`
	Semantics  *encodedSemantics `json:"semantics,omitempty"`
}

type encodedSemantics struct {
	Surfaces []semanticSurface `json:"surfaces"`
	Values   any               `json:"values"`
}

type semanticSurface struct {
	Type string `json:"type"`
}

// encodeGeometry converts an assembled geometry to its index-array form. The
// nesting depth follows the geometry type exactly: MultiSurface boundaries
// are rings-of-surfaces, Solid boundaries add one shell level.
func (b *Builder) encodeGeometry(g geometry.Geometry) (encodedGeometry, error) {
	eg := encodedGeometry{Type: string(g.Boundary.Type), LoD: g.LoD}

	switch g.Boundary.Type {
	case geometry.MultiSurface, geometry.CompositeSurface:
		eg.Boundaries = b.encodeSurfaces(g.Boundary.Surfaces)
	case geometry.Solid:
		shells := make([][][][]int, 0, len(g.Boundary.Shells))
		for _, shell := range g.Boundary.Shells {
			shells = append(shells, b.encodeSurfaces(shell))
		}
		eg.Boundaries = shells
	default:
		return encodedGeometry{}, eris.Errorf("cityjson: unsupported geometry type %q", g.Boundary.Type)
	}

	if g.Semantics != nil {
		names, values := g.Semantics.Table()
		surfaces := make([]semanticSurface, len(names))
		for i, n := range names {
			surfaces[i] = semanticSurface{Type: n}
		}
		es := &encodedSemantics{Surfaces: surfaces}
		if g.Boundary.Type == geometry.Solid {
			// Per-shell nesting; single-shell solids only.
			es.Values = [][]int{values}
		} else {
			es.Values = values
		}
		eg.Semantics = es
	}
	return eg, nil
}

func (b *Builder) encodeSurfaces(surfaces []geometry.Surface) [][][]int {
	out := make([][][]int, 0, len(surfaces))
	for _, srf := range surfaces {
		rings := make([][]int, 0, len(srf))
		for _, ring := range srf {
			idx := make([]int, 0, len(ring))
			for _, v := range ring {
				idx = append(idx, b.addVertex(v))
			}
			rings = append(rings, idx)
		}
		out = append(out, rings)
	}
	return out
}

// addVertex quantizes a vertex and returns its index in the shared pool,
// reusing the slot when the quantized coordinate was seen before.
func (b *Builder) addVertex(v geometry.Vertex) int {
	q := [3]int64{
		quantize(v[0], b.transform.Translate[0], b.transform.Scale[0]),
		quantize(v[1], b.transform.Translate[1], b.transform.Scale[1]),
		quantize(v[2], b.transform.Translate[2], b.transform.Scale[2]),
	}
	if i, ok := b.index[q]; ok {
		return i
	}
	i := len(b.vertices)
	b.vertices = append(b.vertices, q)
	b.index[q] = i
	return i
}

func quantize(coord, translate, scale float64) int64 {
	return int64(math.Round((coord - translate) / scale))
}
