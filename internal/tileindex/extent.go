package tileindex

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// AllTiles is the sentinel tile id that selects every feature without any
// geometric filtering.
const AllTiles = "all"

// ExtentKind discriminates the supported extent filter shapes.
type ExtentKind int

const (
	ExtentBBox ExtentKind = iota
	ExtentPolygon
	ExtentTiles
)

// Extent is the polymorphic region used to pre-filter exported rows. It is
// immutable after construction and only ever evaluated as a spatial
// predicate pushed down into the row query.
type Extent struct {
	kind    ExtentKind
	bbox    [4]float64
	polygon *geom.Polygon
	tiles   []string
}

// FromBBox builds a bounding-box extent (minx, miny, maxx, maxy).
func FromBBox(minX, minY, maxX, maxY float64) (*Extent, error) {
	if maxX <= minX || maxY <= minY {
		return nil, eris.Wrapf(ErrInvalidExtent, "bbox (%g %g %g %g)", minX, minY, maxX, maxY)
	}
	return &Extent{kind: ExtentBBox, bbox: [4]float64{minX, minY, maxX, maxY}}, nil
}

// FromPolygon builds a polygonal extent.
func FromPolygon(p *geom.Polygon) (*Extent, error) {
	if p == nil || p.NumCoords() < 3 {
		return nil, eris.Wrap(ErrInvalidExtent, "polygon needs at least 3 vertices")
	}
	return &Extent{kind: ExtentPolygon, polygon: p}, nil
}

// FromTiles builds an extent from a set of tile ids resolved against the
// persisted tile index. The id "all" anywhere in the list short-circuits to
// an unconditional filter.
func FromTiles(ids []string) *Extent {
	return &Extent{kind: ExtentTiles, tiles: ids}
}

// Kind returns the extent's discriminator.
func (e *Extent) Kind() ExtentKind { return e.kind }

// Polygon returns the extent polygon for polygonal extents, nil otherwise.
func (e *Extent) Polygon() *geom.Polygon { return e.polygon }

// Tiles returns the requested tile ids for tile extents.
func (e *Extent) Tiles() []string { return e.tiles }

// All reports whether the extent selects everything, without requiring any
// polygon union computation.
func (e *Extent) All() bool {
	if e.kind != ExtentTiles {
		return false
	}
	for _, id := range e.tiles {
		if strings.EqualFold(id, AllTiles) {
			return true
		}
	}
	return false
}

// Predicate renders the extent as a spatial SQL predicate over the given
// geometry column, with its bind arguments. The empty string means "no
// filter" (the "all" sentinel).
func (e *Extent) Predicate(geomColumn string, srid int, index TableRef) (string, []any, error) {
	switch e.kind {
	case ExtentBBox:
		clause := fmt.Sprintf(
			"ST_3DIntersects(%s, ST_MakeEnvelope($1, $2, $3, $4, %d))",
			geomColumn, srid,
		)
		return clause, []any{e.bbox[0], e.bbox[1], e.bbox[2], e.bbox[3]}, nil
	case ExtentPolygon:
		ewkt, err := PolygonEWKT(e.polygon, srid)
		if err != nil {
			return "", nil, err
		}
		clause := fmt.Sprintf("ST_3DIntersects(%s, ST_GeomFromEWKT($1))", geomColumn)
		return clause, []any{ewkt}, nil
	case ExtentTiles:
		if e.All() {
			return "", nil, nil
		}
		clause := fmt.Sprintf(
			"ST_3DIntersects(%s, (SELECT ST_Union(geom) FROM %s WHERE id = ANY($1)))",
			geomColumn, index.Qualified(),
		)
		return clause, []any{e.tiles}, nil
	}
	return "", nil, eris.Errorf("tileindex: unknown extent kind %d", e.kind)
}

// PolygonEWKT renders a polygon as EWKT with the given SRID.
func PolygonEWKT(p *geom.Polygon, srid int) (string, error) {
	s, err := wkt.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "tileindex: marshal polygon wkt")
	}
	return fmt.Sprintf("SRID=%d;%s", srid, s), nil
}

// ReadGeoJSONPolygon reads a single polygon from GeoJSON input: either a
// bare Polygon geometry or the first feature of a FeatureCollection.
// Multi-geometries are rejected.
func ReadGeoJSONPolygon(r io.Reader) (*geom.Polygon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "tileindex: read geojson")
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, eris.Wrap(err, "tileindex: parse geojson")
	}

	var g geom.T
	switch probe.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "tileindex: parse feature collection")
		}
		if len(fc.Features) == 0 {
			return nil, eris.Wrap(ErrInvalidExtent, "feature collection is empty")
		}
		g = fc.Features[0].Geometry
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "tileindex: parse feature")
		}
		g = f.Geometry
	default:
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "tileindex: parse geometry")
		}
	}

	p, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Wrapf(ErrInvalidExtent, "extent must be a Polygon, got %T", g)
	}
	return p, nil
}

// ReadShapefilePolygon reads the first polygon record from a shapefile.
func ReadShapefilePolygon(path string) (*geom.Polygon, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tileindex: open shapefile %s", path)
	}
	defer r.Close()

	for r.Next() {
		_, shape := r.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		return shpPolygon(p)
	}
	return nil, eris.Wrap(ErrInvalidExtent, "shapefile contains no polygon record")
}

// shpPolygon converts a shapefile polygon to a geom.Polygon, ring by ring.
func shpPolygon(p *shp.Polygon) (*geom.Polygon, error) {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil, eris.Wrap(ErrInvalidExtent, "empty shapefile polygon")
	}

	poly := geom.NewPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			return nil, eris.Wrapf(err, "tileindex: shapefile ring %d", i)
		}
	}
	return poly, nil
}
