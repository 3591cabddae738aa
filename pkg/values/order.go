package values

import "bytes"

// kindRank gives each Kind's position in the canonical ordering:
// Null < Bool < Number(NaN first) < Timestamp < String < Bytes < Reference
// < GeoPoint < Array < Vector < Map.
func kindRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt64, KindDouble:
		return 2
	case KindTimestamp:
		return 3
	case KindString:
		return 4
	case KindBytes:
		return 5
	case KindReference:
		return 6
	case KindGeoPoint:
		return 7
	case KindArray:
		return 8
	case KindVector:
		return 9
	case KindMap:
		return 10
	default:
		return 11
	}
}

// Compare implements the canonical value ordering across kinds, ranked
// Null < Bool < Number < Timestamp < String < Bytes < Reference <
// GeoPoint < Array < Vector < Map. It returns <0, 0, >0 as a < b, a == b,
// a > b.
func Compare(a, b Value) int {
	ra, rb := kindRank(a.Kind), kindRank(b.Kind)
	if ra != rb {
		return ra - rb
	}
	switch a.Kind {
	case KindNull:
		return 0
	case KindBool:
		return compareBool(a.boolVal, b.boolVal)
	case KindInt64, KindDouble:
		return compareNumber(a, b)
	case KindTimestamp:
		switch {
		case a.ts.Before(b.ts):
			return -1
		case a.ts.After(b.ts):
			return 1
		default:
			return 0
		}
	case KindString:
		return compareString(a.strVal, b.strVal)
	case KindBytes:
		return bytes.Compare(a.bytesVal, b.bytesVal)
	case KindReference:
		return compareReference(a.ref, b.ref)
	case KindGeoPoint:
		if a.geo.Lat != b.geo.Lat {
			return compareFloat(a.geo.Lat, b.geo.Lat)
		}
		return compareFloat(a.geo.Lon, b.geo.Lon)
	case KindArray:
		return compareArray(a.arr, b.arr)
	case KindVector:
		return compareVector(a.vec, b.vec)
	case KindMap:
		return compareMap(a, b)
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

// compareNumber orders NaN first, then by numeric value, treating Int64
// and Double as the same numeric domain.
func compareNumber(a, b Value) int {
	aNaN, bNaN := a.IsNaN(), b.IsNaN()
	if aNaN && bNaN {
		return 0
	}
	if aNaN {
		return -1
	}
	if bNaN {
		return 1
	}
	return compareFloat(a.AsFloat64(), b.AsFloat64())
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareReference(a, b Reference) int {
	if c := compareString(a.DatabaseID, b.DatabaseID); c != 0 {
		return c
	}
	return comparePathComponentwise(a.Path, b.Path)
}

func comparePathComponentwise(a, b string) int {
	as, bs := splitPath(a), splitPath(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if c := compareString(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return len(as) - len(bs)
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	var segs []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			segs = append(segs, p[start:i])
			start = i + 1
		}
	}
	segs = append(segs, p[start:])
	return segs
}

func compareArray(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareVector(a, b []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareFloat(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// compareMap orders by sorted-field comparison: compare the sorted key
// lists first, then compare values key by key.
func compareMap(a, b Value) int {
	ak := sortedKeys(a.m)
	bk := sortedKeys(b.m)
	n := len(ak)
	if len(bk) < n {
		n = len(bk)
	}
	for i := 0; i < n; i++ {
		if c := compareString(ak[i], bk[i]); c != 0 {
			return c
		}
	}
	if len(ak) != len(bk) {
		return len(ak) - len(bk)
	}
	for _, k := range ak {
		if c := Compare(a.m[k], b.m[k]); c != 0 {
			return c
		}
	}
	return 0
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion sort is fine here: field maps are small.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
