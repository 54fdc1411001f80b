// Package cityjson holds the exchange document model: city objects with
// boundary geometry referencing a shared, quantized vertex pool, serialized
// as CityJSON 1.1 documents or line-delimited CityJSONFeature records.
package cityjson

import (
	"fmt"
	"math"

	"github.com/sells-group/cjdb-export/internal/geometry"
)

// Version is the CityJSON version written to every document.
const Version = "1.1"

// CityObject is one exported feature: a typed entity with an attribute map
// and one or more geometries. It is built per database row and handed to a
// writer immediately, never retained.
type CityObject struct {
	ID         string
	Type       string
	Attributes map[string]Value
	Geometry   []geometry.Geometry
}

// Transform is the quantization applied to all vertices of a document.
type Transform struct {
	Scale     [3]float64 `json:"scale"`
	Translate [3]float64 `json:"translate"`
}

// NewTransform derives the vertex quantization from the number of decimal
// digits to preserve and the translation origin.
func NewTransform(importantDigits int, translate [3]float64) Transform {
	if importantDigits < 1 {
		importantDigits = 1
	}
	s := math.Pow10(-importantDigits)
	return Transform{Scale: [3]float64{s, s, s}, Translate: translate}
}

// Metadata carries the document-level metadata fields the exporter fills in.
type Metadata struct {
	ReferenceSystem string `json:"referenceSystem,omitempty"`
	FileIdentifier  string `json:"fileIdentifier,omitempty"`
}

// ReferenceSystemURL renders an EPSG code as the OGC CRS URL the format
// expects.
func ReferenceSystemURL(srid int) string {
	return fmt.Sprintf("https://www.opengis.net/def/crs/EPSG/0/%d", srid)
}
