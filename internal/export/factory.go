package export

import (
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cjdb-export/internal/cityjson"
	"github.com/sells-group/cjdb-export/internal/geometry"
)

// ErrAttributeConversion marks a feature whose attributes cannot be
// represented in CityJSON. The feature is skipped and recorded, the export
// continues.
var ErrAttributeConversion = eris.New("export: attribute not convertible")

// Factory turns raw features of one table into city objects.
type Factory struct {
	Type      string
	Assembler *geometry.Assembler
	Digits    int
}

// CityObject assembles a feature's boundaries and converts its attributes.
// A feature with no usable geometry at any LoD yields an error; semantics
// failures are already downgraded by the assembler and do not fail here.
func (f *Factory) CityObject(feat Feature) (cityjson.CityObject, error) {
	if feat.ID == "" {
		return cityjson.CityObject{}, eris.Errorf("export: feature pk=%s has no identifier", feat.PK)
	}

	geoms, err := f.Assembler.Assemble(feat.Geom)
	if err != nil && geoms == nil {
		// Malformed geometry. Semantics failures also surface here but keep
		// the boundaries, those are already logged and not acted on.
		return cityjson.CityObject{}, eris.Wrapf(err, "feature %s", feat.ID)
	}
	kept := geoms[:0]
	for _, g := range geoms {
		if !g.Boundary.Empty() {
			kept = append(kept, g)
		}
	}
	if len(kept) == 0 {
		return cityjson.CityObject{}, eris.Errorf("export: feature %s has no geometry", feat.ID)
	}

	attrs := make(map[string]cityjson.Value, len(feat.Attributes))
	for name, raw := range feat.Attributes {
		val, err := convertValue(raw, f.Digits)
		if err != nil {
			return cityjson.CityObject{}, eris.Wrapf(err, "attribute %s of feature %s", name, feat.ID)
		}
		attrs[name] = val
	}

	return cityjson.CityObject{
		ID:         feat.ID,
		Type:       f.Type,
		Attributes: attrs,
		Geometry:   kept,
	}, nil
}

// convertValue maps a database value onto a CityJSON attribute value.
// Floats are rounded to the export's significant digits, temporal values
// become ISO strings.
func convertValue(v any, digits int) (cityjson.Value, error) {
	switch x := v.(type) {
	case nil:
		return cityjson.Null(), nil
	case bool:
		return cityjson.Bool(x), nil
	case string:
		return cityjson.String(x), nil
	case []byte:
		return cityjson.String(string(x)), nil
	case int:
		return cityjson.Int(int64(x)), nil
	case int16:
		return cityjson.Int(int64(x)), nil
	case int32:
		return cityjson.Int(int64(x)), nil
	case int64:
		return cityjson.Int(x), nil
	case float32:
		return cityjson.Float(roundTo(float64(x), digits)), nil
	case float64:
		return cityjson.Float(roundTo(x, digits)), nil
	case time.Time:
		if isDateOnly(x) {
			return cityjson.Date(x.Format("2006-01-02")), nil
		}
		return cityjson.Timestamp(x.Format(time.RFC3339)), nil
	case time.Duration:
		return cityjson.Interval(x.String()), nil
	case pgtype.Interval:
		return cityjson.Interval(formatInterval(x)), nil
	case []any:
		elems := make([]cityjson.Value, 0, len(x))
		for _, e := range x {
			ev, err := convertValue(e, digits)
			if err != nil {
				return cityjson.Value{}, err
			}
			elems = append(elems, ev)
		}
		return cityjson.Array(elems), nil
	case []string:
		elems := make([]cityjson.Value, 0, len(x))
		for _, e := range x {
			elems = append(elems, cityjson.String(e))
		}
		return cityjson.Array(elems), nil
	case []int32:
		elems := make([]cityjson.Value, 0, len(x))
		for _, e := range x {
			elems = append(elems, cityjson.Int(int64(e)))
		}
		return cityjson.Array(elems), nil
	case []int64:
		elems := make([]cityjson.Value, 0, len(x))
		for _, e := range x {
			elems = append(elems, cityjson.Int(e))
		}
		return cityjson.Array(elems), nil
	case []float64:
		elems := make([]cityjson.Value, 0, len(x))
		for _, e := range x {
			elems = append(elems, cityjson.Float(roundTo(e, digits)))
		}
		return cityjson.Array(elems), nil
	default:
		return cityjson.Value{}, eris.Wrapf(ErrAttributeConversion, "type %T", v)
	}
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}

// isDateOnly treats midnight values as plain dates, which is how date
// columns come back from the driver.
func isDateOnly(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

// formatInterval renders a PostgreSQL interval in its verbose form.
func formatInterval(iv pgtype.Interval) string {
	if !iv.Valid {
		return ""
	}
	out := ""
	if iv.Months != 0 {
		out += fmt.Sprintf("%d mons ", iv.Months)
	}
	if iv.Days != 0 {
		out += fmt.Sprintf("%d days ", iv.Days)
	}
	d := time.Duration(iv.Microseconds) * time.Microsecond
	if d != 0 || out == "" {
		out += d.String()
	}
	if n := len(out); n > 0 && out[n-1] == ' ' {
		out = out[:n-1]
	}
	return out
}
