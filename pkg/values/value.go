/*
Package values implements the document database's typed value system: the
tagged Value union, its canonical ordering, its wire codec, and
document/collection path parsing and formatting.

Every operator over Value is a total function over an explicit Kind enum —
there is no reflection-driven type switching over interface{} anywhere in
this package. Documents hold a dynamic, loosely-typed field universe, and
Value re-expresses that as a tagged sum with one arm per variant.
*/
package values

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Kind identifies which arm of the Value union is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindDouble
	KindTimestamp
	KindString
	KindBytes
	KindReference
	KindGeoPoint
	KindArray
	KindVector
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindTimestamp:
		return "timestamp"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindReference:
		return "reference"
	case KindGeoPoint:
		return "geopoint"
	case KindArray:
		return "array"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat, Lon float64
}

// Reference identifies a document in a (possibly different) database.
type Reference struct {
	DatabaseID string
	Path       string // slash-joined document path, no leading/trailing slash
}

func (r Reference) Equal(o Reference) bool {
	return r.DatabaseID == o.DatabaseID && r.Path == o.Path
}

// Value is a tagged union over the scalar and composite value kinds a
// document field may hold.
type Value struct {
	Kind Kind

	boolVal  bool
	intVal   int64
	dblVal   float64
	ts       time.Time // truncated to microsecond resolution on construction
	strVal   string
	bytesVal []byte
	ref      Reference
	geo      GeoPoint
	arr      []Value
	vec      []float64
	m        map[string]Value
	mOrder   []string // field names in sorted order, cosmetic only (map order is spec-irrelevant)
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, boolVal: b} }
func Int64(i int64) Value         { return Value{Kind: KindInt64, intVal: i} }
func Double(f float64) Value      { return Value{Kind: KindDouble, dblVal: f} }
func String(s string) Value       { return Value{Kind: KindString, strVal: s} }
func Bytes(b []byte) Value        { return Value{Kind: KindBytes, bytesVal: append([]byte(nil), b...)} }
func Geo(lat, lon float64) Value  { return Value{Kind: KindGeoPoint, geo: GeoPoint{lat, lon}} }
func Ref(dbID, path string) Value { return Value{Kind: KindReference, ref: Reference{dbID, path}} }

// Timestamp truncates nanoseconds to a multiple of 1000 (microsecond
// resolution).
func Timestamp(t time.Time) Value {
	return Value{Kind: KindTimestamp, ts: truncateToMicros(t)}
}

func truncateToMicros(t time.Time) time.Time {
	ns := t.Nanosecond()
	truncated := (ns / 1000) * 1000
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), truncated, t.Location())
}

// Array builds an ordered Array value.
func Array(vs ...Value) Value {
	return Value{Kind: KindArray, arr: append([]Value(nil), vs...)}
}

// Vector builds a fixed-length Vector value, distinct from Array: only
// Vector fields are valid findNearest targets.
func Vector(vs ...float64) Value {
	return Value{Kind: KindVector, vec: append([]float64(nil), vs...)}
}

// Map builds a Map value from field name to Value.
func Map(fields map[string]Value) Value {
	m := make(map[string]Value, len(fields))
	order := make([]string, 0, len(fields))
	for k, v := range fields {
		m[k] = v
		order = append(order, k)
	}
	sort.Strings(order)
	return Value{Kind: KindMap, m: m, mOrder: order}
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) AsBool() bool           { return v.boolVal }
func (v Value) AsInt64() int64         { return v.intVal }
func (v Value) AsDouble() float64      { return v.dblVal }
func (v Value) AsTimestamp() time.Time { return v.ts }
func (v Value) AsString() string       { return v.strVal }
func (v Value) AsBytes() []byte        { return v.bytesVal }
func (v Value) AsReference() Reference { return v.ref }
func (v Value) AsGeoPoint() GeoPoint   { return v.geo }
func (v Value) AsArray() []Value       { return v.arr }
func (v Value) AsVector() []float64    { return v.vec }

// AsMap returns the field map, live (not a copy) — callers in this module
// never mutate it in place, they build a fresh Map value instead.
func (v Value) AsMap() map[string]Value { return v.m }

// IsNumber reports whether v is Int64 or Double.
func (v Value) IsNumber() bool { return v.Kind == KindInt64 || v.Kind == KindDouble }

// AsFloat64 converts an Int64 or Double value to float64.
func (v Value) AsFloat64() float64 {
	if v.Kind == KindInt64 {
		return float64(v.intVal)
	}
	return v.dblVal
}

// IsNaN reports whether v is a Double holding NaN.
func (v Value) IsNaN() bool {
	return v.Kind == KindDouble && math.IsNaN(v.dblVal)
}

// GetField resolves a dotted field path against a Map value. Returns
// (Value{}, false) if any segment is absent or an intermediate segment is
// not itself a Map.
func (v Value) GetField(dottedPath string) (Value, bool) {
	cur := v
	for _, seg := range strings.Split(dottedPath, ".") {
		if cur.Kind != KindMap {
			return Value{}, false
		}
		next, ok := cur.m[seg]
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// WithField returns a copy of a Map value with dottedPath set to val,
// creating intermediate maps as needed.
func (v Value) WithField(dottedPath string, val Value) Value {
	segs := strings.Split(dottedPath, ".")
	return setField(v, segs, val)
}

func setField(base Value, segs []string, val Value) Value {
	if base.Kind != KindMap {
		base = Map(nil)
	}
	fields := make(map[string]Value, len(base.m)+1)
	for k, v := range base.m {
		fields[k] = v
	}
	if len(segs) == 1 {
		fields[segs[0]] = val
		return Map(fields)
	}
	child := fields[segs[0]]
	fields[segs[0]] = setField(child, segs[1:], val)
	return Map(fields)
}

// WithoutField returns a copy of a Map value with dottedPath deleted. If
// the path (or an ancestor) is absent, base is returned unchanged.
func (v Value) WithoutField(dottedPath string) Value {
	segs := strings.Split(dottedPath, ".")
	return deleteField(v, segs)
}

func deleteField(base Value, segs []string) Value {
	if base.Kind != KindMap {
		return base
	}
	fields := make(map[string]Value, len(base.m))
	for k, v := range base.m {
		fields[k] = v
	}
	if len(segs) == 1 {
		delete(fields, segs[0])
		return Map(fields)
	}
	child, ok := fields[segs[0]]
	if !ok {
		return base
	}
	fields[segs[0]] = deleteField(child, segs[1:])
	return Map(fields)
}

// Equal implements value equality as a total function: two NaN Values
// compare equal here, since this is structural equality, not the query
// evaluator's EQUAL-NaN filter semantics (those special cases live in the
// query evaluator, not in Equal).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		// Int64 and Double that denote the same number are still distinct
		// kinds; the managed service treats them as distinct too.
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == o.boolVal
	case KindInt64:
		return v.intVal == o.intVal
	case KindDouble:
		if math.IsNaN(v.dblVal) && math.IsNaN(o.dblVal) {
			return true
		}
		return v.dblVal == o.dblVal
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	case KindString:
		return v.strVal == o.strVal
	case KindBytes:
		return string(v.bytesVal) == string(o.bytesVal)
	case KindReference:
		return v.ref.Equal(o.ref)
	case KindGeoPoint:
		return v.geo == o.geo
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindVector:
		if len(v.vec) != len(o.vec) {
			return false
		}
		for i := range v.vec {
			if v.vec[i] != o.vec[i] {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, fv := range v.m {
			ov, ok := o.m[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
	case KindInt64:
		return fmt.Sprintf("%d", v.intVal)
	case KindDouble:
		return fmt.Sprintf("%g", v.dblVal)
	case KindTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	case KindString:
		return v.strVal
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytesVal))
	case KindReference:
		return v.ref.Path
	case KindGeoPoint:
		return fmt.Sprintf("(%g,%g)", v.geo.Lat, v.geo.Lon)
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindVector:
		return fmt.Sprintf("vector(%d)", len(v.vec))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	default:
		return "?"
	}
}
