package writes

import (
	"time"

	"github.com/cuemby/firestash/pkg/values"
)

// applyTransform resolves one field transform against doc (the merged
// base+update map, before this transform), returning the updated map and
// the transform's resolved server value.
func applyTransform(doc values.Value, t Transform, commitTime time.Time) (values.Value, values.Value, error) {
	switch t.Kind {
	case TransformServerTimestamp:
		tv := values.Timestamp(commitTime)
		return doc.WithField(t.FieldPath, tv), tv, nil

	case TransformIncrement:
		cur, _ := doc.GetField(t.FieldPath)
		nv := numericAdd(cur, t.Operand)
		return doc.WithField(t.FieldPath, nv), nv, nil

	case TransformMaximum:
		cur, ok := doc.GetField(t.FieldPath)
		var nv values.Value
		if !ok || !cur.IsNumber() || values.Compare(t.Operand, cur) > 0 {
			nv = t.Operand
		} else {
			nv = cur
		}
		return doc.WithField(t.FieldPath, nv), nv, nil

	case TransformMinimum:
		cur, ok := doc.GetField(t.FieldPath)
		var nv values.Value
		if !ok || !cur.IsNumber() || values.Compare(t.Operand, cur) < 0 {
			nv = t.Operand
		} else {
			nv = cur
		}
		return doc.WithField(t.FieldPath, nv), nv, nil

	case TransformArrayUnion:
		cur, _ := doc.GetField(t.FieldPath)
		var base []values.Value
		if cur.Kind == values.KindArray {
			base = append([]values.Value(nil), cur.AsArray()...)
		}
		for _, add := range t.Operand.AsArray() {
			if !containsValue(base, add) {
				base = append(base, add)
			}
		}
		nv := values.Array(base...)
		return doc.WithField(t.FieldPath, nv), nv, nil

	case TransformArrayRemove:
		cur, _ := doc.GetField(t.FieldPath)
		var base []values.Value
		if cur.Kind == values.KindArray {
			base = cur.AsArray()
		}
		remove := t.Operand.AsArray()
		var out []values.Value
		for _, v := range base {
			if !containsValue(remove, v) {
				out = append(out, v)
			}
		}
		nv := values.Array(out...)
		return doc.WithField(t.FieldPath, nv), nv, nil

	default:
		return doc, values.Null(), values.InvalidArgument("transforms", "unknown transform kind")
	}
}

func containsValue(vs []values.Value, v values.Value) bool {
	for _, e := range vs {
		if e.Equal(v) {
			return true
		}
	}
	return false
}

// numericAdd adds two numeric Values, per the managed service's increment
// semantics: integer + integer stays Int64, any Double operand promotes
// the result to Double. A missing or non-numeric base is treated as 0 of
// the operand's kind.
func numericAdd(base, operand values.Value) values.Value {
	if !base.IsNumber() {
		base = values.Int64(0)
	}
	if base.Kind == values.KindInt64 && operand.Kind == values.KindInt64 {
		return values.Int64(base.AsInt64() + operand.AsInt64())
	}
	return values.Double(base.AsFloat64() + operand.AsFloat64())
}
