/*
Package query implements the structured query evaluator: gathering
candidate documents for a collection or collection-group target, applying
a filter tree, sorting by order-by, applying cursors, offset and limit,
and the separate findNearest vector-search path.

The pipeline runs filter, then sort, then page, in that order, the same
selection-and-paging structure used elsewhere in this codebase for
picking and ordering a subset of candidates out of a larger set.
*/
package query

import (
	"sort"

	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
)

// Op is a field filter operator.
type Op int

const (
	Equal Op = iota
	NotEqual
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
	ArrayContains
	ArrayContainsAny
	In
	NotIn
	IsNaN
	IsNull
	IsNotNaN
	IsNotNull
)

// Direction is an order-by sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// NameField is the document-id pseudo field path, "__name__".
const NameField = "__name__"

// Filter is one node of the filter tree: either a field filter (Op, Field,
// Value) or a composite (And/Or over Sub).
type Filter struct {
	Composite bool
	IsOr      bool
	Sub       []Filter

	Field string
	Op    Op
	Value values.Value // operand; for In/NotIn/ArrayContainsAny, an Array
}

// OrderBy is one sort key.
type OrderBy struct {
	Field string
	Dir   Direction
}

// Cursor is a paging boundary: a tuple of values aligned with OrderBy,
// inclusive or exclusive of the boundary itself.
type Cursor struct {
	Values    []values.Value
	Inclusive bool
}

// Target selects either one collection (scoped under Parent) or a
// collection group (every collection named CollectionID at any depth).
type Target struct {
	Parent         string // parent document path, "" for root
	CollectionID   string
	AllDescendants bool // collection-group query
}

// FindNearest parameterizes a vector nearest-neighbor search, replacing
// the filter/order/cursor stages.
type FindNearest struct {
	VectorField     string
	QueryVector     []float64
	Limit           int
	DistanceMeasure DistanceMeasure
}

type DistanceMeasure int

const (
	Euclidean DistanceMeasure = iota
	Cosine
	DotProduct
)

// Query is a complete structured query, either a standard filter/order
// query or (if FindNearestSet) a vector search.
type Query struct {
	Target Target

	Filter   Filter // zero value (Composite=false, Op=0...) means "no filter" only when explicitly empty; callers use HasFilter
	HasFilter bool

	OrderBy []OrderBy
	StartAt *Cursor
	EndAt   *Cursor
	Offset  int
	Limit   int
	HasLimit bool

	FindNearestSet bool
	FindNearest    FindNearest
}

// Validate checks the structural rules that are independent of store
// contents: IN/ARRAY_CONTAINS_ANY conflicts, the inequality-field rule,
// and findNearest limit bounds.
func (q Query) Validate() error {
	if q.FindNearestSet {
		if q.FindNearest.Limit <= 0 || q.FindNearest.Limit > 1000 {
			return values.InvalidArgument("findNearest.limit", "limit must be a positive integer <= 1000")
		}
		if len(q.FindNearest.QueryVector) == 0 {
			return values.InvalidArgument("findNearest.queryVector", "query vector must not be empty")
		}
		return nil
	}

	var hasIn, hasArrayContainsAny bool
	ineqFields := map[string]bool{}
	var listErr error
	walkFilter(q.Filter, q.HasFilter, func(f Filter) {
		switch f.Op {
		case In:
			hasIn = true
		case ArrayContainsAny:
			hasArrayContainsAny = true
		case NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, NotIn:
			ineqFields[f.Field] = true
		}
		if f.Op == In || f.Op == NotIn || f.Op == ArrayContainsAny {
			if n := len(f.Value.AsArray()); n > 30 {
				listErr = values.InvalidArgument("filter", "IN/NOT_IN/ARRAY_CONTAINS_ANY accept at most 30 entries")
			}
		}
	})
	if listErr != nil {
		return listErr
	}
	if hasIn && hasArrayContainsAny {
		return values.InvalidArgument("filter", "IN and ARRAY_CONTAINS_ANY cannot coexist in the same query")
	}
	if len(ineqFields) > 1 {
		return values.InvalidArgument("filter", "inequality filters may address at most one field path")
	}
	for f := range ineqFields {
		if len(q.OrderBy) > 0 && q.OrderBy[0].Field != f {
			return values.InvalidArgument("orderBy", "the inequality field must be the first order-by key")
		}
	}
	return nil
}

func walkFilter(f Filter, present bool, visit func(Filter)) {
	if !present {
		return
	}
	if f.Composite {
		for _, s := range f.Sub {
			walkFilter(s, true, visit)
		}
		return
	}
	visit(f)
}

// effectiveOrderBy appends the implicit trailing __name__ key if the
// caller's order-by doesn't already include one.
func effectiveOrderBy(obs []OrderBy) []OrderBy {
	for _, ob := range obs {
		if ob.Field == NameField {
			return obs
		}
	}
	return append(append([]OrderBy(nil), obs...), OrderBy{Field: NameField, Dir: Ascending})
}

// candidate pairs a document with its resolved order-by key, for sorting
// and cursor comparison.
type candidate struct {
	doc store.Document
	key []values.Value
}

// Run executes q against st, returning the matched documents in final
// order after filter/sort/cursor/offset/limit.
func Run(st store.Store, q Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	docs, err := gather(st, q.Target)
	if err != nil {
		return nil, err
	}

	if q.FindNearestSet {
		return runFindNearest(docs, q.FindNearest), nil
	}

	orderBy := effectiveOrderBy(q.OrderBy)

	var filtered []store.Document
	for _, d := range docs {
		ok, err := matchFilter(d, q.Filter, q.HasFilter)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, d)
		}
	}

	cands := make([]candidate, len(filtered))
	for i, d := range filtered {
		cands[i] = candidate{doc: d, key: orderKey(d, orderBy)}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return compareKeys(cands[i].key, cands[j].key, orderBy) < 0
	})

	if q.StartAt != nil {
		cands = applyStartCursor(cands, orderBy, *q.StartAt)
	}
	if q.EndAt != nil {
		cands = applyEndCursor(cands, orderBy, *q.EndAt)
	}

	if q.Offset > 0 {
		if q.Offset >= len(cands) {
			cands = nil
		} else {
			cands = cands[q.Offset:]
		}
	}
	if q.HasLimit && q.Limit >= 0 && len(cands) > q.Limit {
		cands = cands[:q.Limit]
	}

	out := make([]store.Document, len(cands))
	for i, c := range cands {
		out[i] = c.doc
	}
	return out, nil
}

func gather(st store.Store, t Target) ([]store.Document, error) {
	if t.AllDescendants {
		return st.ListCollectionGroup(t.CollectionID)
	}
	return st.ListDocuments(t.Parent, t.CollectionID, false)
}

func applyStartCursor(cands []candidate, orderBy []OrderBy, c Cursor) []candidate {
	idx := sort.Search(len(cands), func(i int) bool {
		cmp := compareKeys(cands[i].key, c.Values, orderBy)
		if c.Inclusive {
			return cmp >= 0
		}
		return cmp > 0
	})
	return cands[idx:]
}

func applyEndCursor(cands []candidate, orderBy []OrderBy, c Cursor) []candidate {
	idx := sort.Search(len(cands), func(i int) bool {
		cmp := compareKeys(cands[i].key, c.Values, orderBy)
		if c.Inclusive {
			return cmp > 0
		}
		return cmp >= 0
	})
	return cands[:idx]
}

// orderKey resolves d's value for each order-by field, using the document
// path (as a reference) for __name__.
func orderKey(d store.Document, orderBy []OrderBy) []values.Value {
	key := make([]values.Value, len(orderBy))
	for i, ob := range orderBy {
		if ob.Field == NameField {
			key[i] = values.Ref("", d.Path)
			continue
		}
		v, ok := d.Fields.GetField(ob.Field)
		if !ok {
			v = values.Null()
		}
		key[i] = v
	}
	return key
}

// compareKeys compares a and b over their shared prefix only, so a cursor
// with fewer values than the order-by compares equal to every key that
// starts with those values.
func compareKeys(a, b []values.Value, orderBy []OrderBy) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c := values.Compare(a[i], b[i])
		if orderBy[i].Dir == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}
