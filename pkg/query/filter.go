package query

import (
	"math"
	"sort"

	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
)

// matchFilter evaluates f against d. present is false for a query with no
// filter tree at all, which matches every document.
func matchFilter(d store.Document, f Filter, present bool) (bool, error) {
	if !present {
		return true, nil
	}
	if f.Composite {
		if f.IsOr {
			for _, s := range f.Sub {
				ok, err := matchFilter(d, s, true)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}
		for _, s := range f.Sub {
			ok, err := matchFilter(d, s, true)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
	return matchField(d, f)
}

func fieldValue(d store.Document, field string) (values.Value, bool) {
	if field == NameField {
		return values.Ref("", d.Path), true
	}
	return d.Fields.GetField(field)
}

func matchField(d store.Document, f Filter) (bool, error) {
	fv, exists := fieldValue(d, f.Field)

	switch f.Op {
	case IsNull:
		return exists && fv.IsNull(), nil
	case IsNotNull:
		return exists && !fv.IsNull(), nil
	case IsNaN:
		return exists && fv.IsNaN(), nil
	case IsNotNaN:
		return exists && fv.IsNumber() && !fv.IsNaN(), nil
	}

	if !exists {
		return false, nil
	}

	switch f.Op {
	case Equal:
		if f.Value.IsNaN() {
			return fv.IsNaN(), nil
		}
		return fv.Equal(f.Value), nil
	case NotEqual:
		if f.Value.IsNaN() {
			return fv.IsNumber() && !fv.IsNaN(), nil
		}
		return !fv.Equal(f.Value), nil
	case LessThan:
		if fv.IsNaN() {
			return false, nil
		}
		return values.Compare(fv, f.Value) < 0, nil
	case LessThanOrEqual:
		if fv.IsNaN() {
			return false, nil
		}
		return values.Compare(fv, f.Value) <= 0, nil
	case GreaterThan:
		if fv.IsNaN() {
			return false, nil
		}
		return values.Compare(fv, f.Value) > 0, nil
	case GreaterThanOrEqual:
		if fv.IsNaN() {
			return false, nil
		}
		return values.Compare(fv, f.Value) >= 0, nil
	case ArrayContains:
		if fv.Kind != values.KindArray {
			return false, nil
		}
		for _, e := range fv.AsArray() {
			if e.Equal(f.Value) {
				return true, nil
			}
		}
		return false, nil
	case ArrayContainsAny:
		if fv.Kind != values.KindArray {
			return false, nil
		}
		for _, want := range f.Value.AsArray() {
			for _, e := range fv.AsArray() {
				if e.Equal(want) {
					return true, nil
				}
			}
		}
		return false, nil
	case In:
		for _, want := range f.Value.AsArray() {
			if fv.Equal(want) {
				return true, nil
			}
		}
		return false, nil
	case NotIn:
		for _, want := range f.Value.AsArray() {
			if fv.Equal(want) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, values.InvalidArgument("filter", "unsupported operator")
	}
}

type scored struct {
	doc  store.Document
	dist float64
}

func runFindNearest(docs []store.Document, fn FindNearest) []store.Document {
	var cands []scored
	for _, d := range docs {
		fv, ok := fieldValue(d, fn.VectorField)
		if !ok || fv.Kind != values.KindVector {
			continue
		}
		vec := fv.AsVector()
		if len(vec) != len(fn.QueryVector) {
			continue
		}
		cands = append(cands, scored{doc: d, dist: distance(vec, fn.QueryVector, fn.DistanceMeasure)})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].doc.Path < cands[j].doc.Path
	})
	if len(cands) > fn.Limit {
		cands = cands[:fn.Limit]
	}
	out := make([]store.Document, len(cands))
	for i, c := range cands {
		out[i] = c.doc
	}
	return out
}

// distance computes a's distance to b under measure. Smaller is always
// "nearer": cosine and dot-product similarities are negated so ascending
// sort by distance still means most-similar first.
func distance(a, b []float64, measure DistanceMeasure) float64 {
	switch measure {
	case Cosine:
		return -cosineSimilarity(a, b)
	case DotProduct:
		return -dotProduct(a, b)
	default: // Euclidean
		return euclidean(a, b)
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func cosineSimilarity(a, b []float64) float64 {
	dp := dotProduct(a, b)
	var na, nb float64
	for i := range a {
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dp / (math.Sqrt(na) * math.Sqrt(nb))
}
