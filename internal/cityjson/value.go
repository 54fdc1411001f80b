package cityjson

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Kind enumerates the closed set of attribute value types the exchange
// format can carry. Database scalars outside this set are a conversion
// error, never a silent pass-through.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDate
	KindTimestamp
	KindInterval
	KindArray
)

// Value is a tagged attribute value. Date, timestamp and interval values are
// stored in their canonical string form at construction time.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Arr   []Value
}

func Null() Value              { return Value{Kind: KindNull} }
func String(s string) Value    { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value        { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value    { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func Date(s string) Value      { return Value{Kind: KindDate, Str: s} }
func Timestamp(s string) Value { return Value{Kind: KindTimestamp, Str: s} }
func Interval(s string) Value  { return Value{Kind: KindInterval, Str: s} }
func Array(vals []Value) Value { return Value{Kind: KindArray, Arr: vals} }

// MarshalJSON renders the value in its exchange form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString, KindDate, KindTimestamp, KindInterval:
		return json.Marshal(v.Str)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindArray:
		if v.Arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Arr)
	}
	return nil, eris.Errorf("cityjson: unknown value kind %d", v.Kind)
}
