package values

import (
	"encoding/base64"
	"time"
)

// WireValue is the tagged wire encoding of a Value: a plain Go struct tree
// that JSON-marshals the same shape the managed service's REST/JSON
// representation uses, with an explicit Kind tag so a Null is
// distinguishable from an absent field. It is what pkg/store persists
// through Snapshot/Restore and what the CLI's dump command prints.
type WireValue struct {
	Kind Kind `json:"kind"`

	BoolValue      *bool              `json:"booleanValue,omitempty"`
	IntegerValue   *int64             `json:"integerValue,omitempty,string"`
	DoubleValue    *float64           `json:"doubleValue,omitempty"`
	TimestampValue *string            `json:"timestampValue,omitempty"` // RFC3339Nano, micros-truncated
	StringValue    *string            `json:"stringValue,omitempty"`
	BytesValue     *string            `json:"bytesValue,omitempty"` // base64
	ReferenceValue *WireReference     `json:"referenceValue,omitempty"`
	GeoPointValue  *WireGeoPoint      `json:"geoPointValue,omitempty"`
	ArrayValue     []WireValue        `json:"arrayValue,omitempty"`
	VectorValue    []float64          `json:"vectorValue,omitempty"`
	MapValue       map[string]WireValue `json:"mapValue,omitempty"`
}

type WireReference struct {
	DatabaseID string `json:"databaseId"`
	Path       string `json:"path"`
}

type WireGeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Encode converts an in-memory Value to its wire representation. Timestamp
// nanoseconds are truncated to microsecond resolution, matching the
// truncation Value already applies at construction — Encode re-applies it
// so a Value built by a caller that bypassed the Timestamp() constructor
// still round-trips correctly.
func Encode(v Value) WireValue {
	w := WireValue{Kind: v.Kind}
	switch v.Kind {
	case KindNull:
		// no payload; Kind alone distinguishes Null from absence.
	case KindBool:
		b := v.boolVal
		w.BoolValue = &b
	case KindInt64:
		i := v.intVal
		w.IntegerValue = &i
	case KindDouble:
		d := v.dblVal
		w.DoubleValue = &d
	case KindTimestamp:
		s := truncateToMicros(v.ts).Format(time.RFC3339Nano)
		w.TimestampValue = &s
	case KindString:
		s := v.strVal
		w.StringValue = &s
	case KindBytes:
		s := base64.StdEncoding.EncodeToString(v.bytesVal)
		w.BytesValue = &s
	case KindReference:
		w.ReferenceValue = &WireReference{DatabaseID: v.ref.DatabaseID, Path: v.ref.Path}
	case KindGeoPoint:
		w.GeoPointValue = &WireGeoPoint{Latitude: v.geo.Lat, Longitude: v.geo.Lon}
	case KindArray:
		arr := make([]WireValue, len(v.arr))
		for i, e := range v.arr {
			arr[i] = Encode(e)
		}
		w.ArrayValue = arr
	case KindVector:
		w.VectorValue = append([]float64(nil), v.vec...)
	case KindMap:
		m := make(map[string]WireValue, len(v.m))
		for k, fv := range v.m {
			m[k] = Encode(fv)
		}
		w.MapValue = m
	}
	return w
}

// Decode converts a wire value back to an in-memory Value, re-truncating
// any Timestamp to microsecond resolution so reads always expose
// microsecond-aligned values even if the wire payload carried finer
// precision.
func Decode(w WireValue) (Value, error) {
	switch w.Kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		if w.BoolValue == nil {
			return Value{}, InvalidArgument("value", "booleanValue missing for bool kind")
		}
		return Bool(*w.BoolValue), nil
	case KindInt64:
		if w.IntegerValue == nil {
			return Value{}, InvalidArgument("value", "integerValue missing for int64 kind")
		}
		return Int64(*w.IntegerValue), nil
	case KindDouble:
		if w.DoubleValue == nil {
			return Value{}, InvalidArgument("value", "doubleValue missing for double kind")
		}
		return Double(*w.DoubleValue), nil
	case KindTimestamp:
		if w.TimestampValue == nil {
			return Value{}, InvalidArgument("value", "timestampValue missing for timestamp kind")
		}
		t, err := time.Parse(time.RFC3339Nano, *w.TimestampValue)
		if err != nil {
			return Value{}, InvalidArgument("value", "malformed timestamp %q: %v", *w.TimestampValue, err)
		}
		return Timestamp(t), nil
	case KindString:
		if w.StringValue == nil {
			return Value{}, InvalidArgument("value", "stringValue missing for string kind")
		}
		return String(*w.StringValue), nil
	case KindBytes:
		if w.BytesValue == nil {
			return Value{}, InvalidArgument("value", "bytesValue missing for bytes kind")
		}
		b, err := base64.StdEncoding.DecodeString(*w.BytesValue)
		if err != nil {
			return Value{}, InvalidArgument("value", "malformed bytes payload: %v", err)
		}
		return Bytes(b), nil
	case KindReference:
		if w.ReferenceValue == nil {
			return Value{}, InvalidArgument("value", "referenceValue missing for reference kind")
		}
		return Ref(w.ReferenceValue.DatabaseID, w.ReferenceValue.Path), nil
	case KindGeoPoint:
		if w.GeoPointValue == nil {
			return Value{}, InvalidArgument("value", "geoPointValue missing for geopoint kind")
		}
		return Geo(w.GeoPointValue.Latitude, w.GeoPointValue.Longitude), nil
	case KindArray:
		vs := make([]Value, len(w.ArrayValue))
		for i, e := range w.ArrayValue {
			dv, err := Decode(e)
			if err != nil {
				return Value{}, err
			}
			vs[i] = dv
		}
		return Array(vs...), nil
	case KindVector:
		return Vector(w.VectorValue...), nil
	case KindMap:
		m := make(map[string]Value, len(w.MapValue))
		for k, fv := range w.MapValue {
			dv, err := Decode(fv)
			if err != nil {
				return Value{}, err
			}
			m[k] = dv
		}
		return Map(m), nil
	default:
		return Value{}, InvalidArgument("value", "unknown value kind %d", w.Kind)
	}
}
