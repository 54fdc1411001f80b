package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cjdb-export/internal/geometry"
)

// Mapping is the feature mapping file: which tables feed which city object
// types and how their columns map onto CityJSON. It is a separate YAML file
// from the app config because its geometry keys are dynamic (lod1, lod2.2)
// and its semantics keys are integers.
type Mapping struct {
	Geometries  GeometryDefaults          `yaml:"geometries"`
	Semantics   map[int]string            `yaml:"semantics"`
	CityObjects map[string][]TableMapping `yaml:"cityobject_type"`
}

// GeometryDefaults holds the mapping-wide geometry settings, overridable per
// object or per column.
type GeometryDefaults struct {
	LoD  string `yaml:"lod"`
	Type string `yaml:"type"`
}

// TableMapping binds one feature table to a city object type.
type TableMapping struct {
	Schema string       `yaml:"schema"`
	Table  string       `yaml:"table"`
	Field  FieldMapping `yaml:"field"`
}

// FieldMapping names the columns with reserved roles. Every other column
// becomes a city object attribute unless excluded.
type FieldMapping struct {
	PK           string        `yaml:"pk"`
	CityObjectID string        `yaml:"cityobject_id"`
	Geometry     GeometryField `yaml:"geometry"`
	LoD          string        `yaml:"lod"`
	Semantics    string        `yaml:"semantics"`
	Exclude      []string      `yaml:"exclude"`
}

// GeometryField is either a single column name or a mapping from lod keys to
// column names, e.g. {lod1: geom_lod1, lod2.2: geom_lod22}.
type GeometryField struct {
	Column  string
	Columns []GeometryColumn
}

// GeometryColumn binds one geometry column to its lod key.
type GeometryColumn struct {
	Key    string // assembler key, "lod1" style for the multi-LoD form
	Column string // database column
	LoD    string // parsed from the key, empty for the single-column form
}

// UnmarshalYAML accepts both the scalar and the mapping form. Mapping keys
// must carry the lod prefix; declaration order is preserved.
func (g *GeometryField) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&g.Column)
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i].Value
			lod := geometry.ParseLoDKey(key)
			if lod == "" {
				return eris.Errorf("config: geometry key %q must start with \"lod\"", key)
			}
			g.Columns = append(g.Columns, GeometryColumn{
				Key:    key,
				Column: value.Content[i+1].Value,
				LoD:    lod,
			})
		}
		if len(g.Columns) == 0 {
			return eris.New("config: geometry mapping is empty")
		}
		return nil
	default:
		return eris.New("config: geometry must be a column name or a lod mapping")
	}
}

// GeometryColumns normalizes both forms into one column list. The single
// column form yields one entry keyed by the column name with no own LoD.
func (f FieldMapping) GeometryColumns() []GeometryColumn {
	if f.Geometry.Column != "" {
		return []GeometryColumn{{Key: f.Geometry.Column, Column: f.Geometry.Column}}
	}
	return f.Geometry.Columns
}

// IDColumn returns the column providing city object identifiers, falling
// back to the primary key.
func (f FieldMapping) IDColumn() string {
	if f.CityObjectID != "" {
		return f.CityObjectID
	}
	return f.PK
}

// LoadMapping reads and validates a feature mapping file.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read mapping %s", path)
	}

	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "config: parse mapping %s", path)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks object types against the CityJSON vocabulary and requires
// the reserved columns every export needs.
func (m *Mapping) Validate() error {
	if len(m.CityObjects) == 0 {
		return eris.New("config: mapping declares no cityobject_type entries")
	}
	if m.Geometries.Type != "" && !geometry.GeometryType(m.Geometries.Type).Valid() {
		return eris.Errorf("config: unknown geometry type %q", m.Geometries.Type)
	}

	for cotype, tables := range m.CityObjects {
		if !ValidCityObjectType(cotype) {
			return eris.Errorf("config: %q is not a CityJSON city object type", cotype)
		}
		if len(tables) == 0 {
			return eris.Errorf("config: %s maps no tables", cotype)
		}
		for _, t := range tables {
			if t.Table == "" {
				return eris.Errorf("config: %s has a table mapping without a table name", cotype)
			}
			if t.Field.PK == "" {
				return eris.Errorf("config: %s.%s needs field.pk", cotype, t.Table)
			}
			if len(t.Field.GeometryColumns()) == 0 {
				return eris.Errorf("config: %s.%s needs field.geometry", cotype, t.Table)
			}
		}
	}
	return nil
}

// LoDColumns converts a table's geometry columns into assembler columns of
// the mapping's geometry type.
func (m *Mapping) LoDColumns(t TableMapping) []geometry.LoDColumn {
	gtype := geometry.GeometryType(m.Geometries.Type)
	if gtype == "" {
		gtype = geometry.MultiSurface
	}
	cols := t.Field.GeometryColumns()
	out := make([]geometry.LoDColumn, 0, len(cols))
	for _, c := range cols {
		out = append(out, geometry.LoDColumn{Key: c.Key, LoD: c.LoD, Type: gtype})
	}
	return out
}

// cityObjectTypes is the CityJSON 1.1 city object vocabulary, first and
// second level.
var cityObjectTypes = map[string]struct{}{
	"Bridge": {}, "BridgePart": {}, "BridgeInstallation": {},
	"BridgeConstructiveElement": {}, "BridgeRoom": {}, "BridgeFurniture": {},
	"Building": {}, "BuildingPart": {}, "BuildingInstallation": {},
	"BuildingConstructiveElement": {}, "BuildingFurniture": {},
	"BuildingStorey": {}, "BuildingRoom": {}, "BuildingUnit": {},
	"CityFurniture": {}, "CityObjectGroup": {}, "GenericCityObject": {},
	"LandUse": {}, "OtherConstruction": {}, "PlantCover": {},
	"SolitaryVegetationObject": {}, "TINRelief": {}, "TransportSquare": {},
	"Railway": {}, "Road": {}, "Waterway": {},
	"Tunnel": {}, "TunnelPart": {}, "TunnelInstallation": {},
	"TunnelConstructiveElement": {}, "TunnelHollowSpace": {}, "TunnelFurniture": {},
	"WaterBody": {},
}

// ValidCityObjectType reports whether the name is a CityJSON city object
// type. Extension types carry a + prefix and pass unchecked.
func ValidCityObjectType(name string) bool {
	if strings.HasPrefix(name, "+") {
		return len(name) > 1
	}
	_, ok := cityObjectTypes[name]
	return ok
}
