package query

import (
	"testing"
	"time"

	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/stretchr/testify/require"
)

func seedUsers(t *testing.T, st store.Store) {
	t.Helper()
	now := time.Now()
	users := []struct {
		id  string
		age int64
	}{
		{"alice", 30},
		{"bob", 25},
		{"carol", 40},
	}
	for _, u := range users {
		_, err := st.SetDocument("users/"+u.id, values.Map(map[string]values.Value{
			"age": values.Int64(u.age),
		}), now)
		require.NoError(t, err)
	}
}

func TestEqualFilter(t *testing.T) {
	st := store.New()
	seedUsers(t, st)
	q := Query{
		Target:    Target{CollectionID: "users"},
		Filter:    Filter{Field: "age", Op: Equal, Value: values.Int64(30)},
		HasFilter: true,
	}
	docs, err := Run(st, q)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "users/alice", docs[0].Path)
}

func TestOrderByAndLimit(t *testing.T) {
	st := store.New()
	seedUsers(t, st)
	q := Query{
		Target:   Target{CollectionID: "users"},
		OrderBy:  []OrderBy{{Field: "age", Dir: Ascending}},
		HasLimit: true,
		Limit:    2,
	}
	docs, err := Run(st, q)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "users/bob", docs[0].Path)
	require.Equal(t, "users/alice", docs[1].Path)
}

func TestInequalityRequiresMatchingOrderBy(t *testing.T) {
	st := store.New()
	seedUsers(t, st)
	q := Query{
		Target:    Target{CollectionID: "users"},
		Filter:    Filter{Field: "age", Op: GreaterThan, Value: values.Int64(20)},
		HasFilter: true,
		OrderBy:   []OrderBy{{Field: "name", Dir: Ascending}},
	}
	_, err := Run(st, q)
	require.Error(t, err)
	require.Equal(t, values.CodeInvalidArgument, values.CodeOf(err))
}

func TestInAndArrayContainsAnyConflict(t *testing.T) {
	q := Query{
		Target: Target{CollectionID: "users"},
		Filter: Filter{
			Composite: true,
			Sub: []Filter{
				{Field: "age", Op: In, Value: values.Array(values.Int64(1))},
				{Field: "tags", Op: ArrayContainsAny, Value: values.Array(values.String("x"))},
			},
		},
		HasFilter: true,
	}
	err := q.Validate()
	require.Error(t, err)
}

func TestCollectionGroup(t *testing.T) {
	st := store.New()
	now := time.Now()
	_, err := st.SetDocument("a/x/items/1", values.Map(map[string]values.Value{"n": values.Int64(1)}), now)
	require.NoError(t, err)
	_, err = st.SetDocument("b/y/items/2", values.Map(map[string]values.Value{"n": values.Int64(2)}), now)
	require.NoError(t, err)

	q := Query{Target: Target{CollectionID: "items", AllDescendants: true}}
	docs, err := Run(st, q)
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestFindNearestOrdersByDistance(t *testing.T) {
	st := store.New()
	now := time.Now()
	_, err := st.SetDocument("docs/a", values.Map(map[string]values.Value{"v": values.Vector(1, 0)}), now)
	require.NoError(t, err)
	_, err = st.SetDocument("docs/b", values.Map(map[string]values.Value{"v": values.Vector(0, 1)}), now)
	require.NoError(t, err)

	q := Query{
		Target:         Target{CollectionID: "docs"},
		FindNearestSet: true,
		FindNearest: FindNearest{
			VectorField:     "v",
			QueryVector:     []float64{1, 0},
			Limit:           1,
			DistanceMeasure: Euclidean,
		},
	}
	docs, err := Run(st, q)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "docs/a", docs[0].Path)
}

func TestFindNearestRejectsBadLimit(t *testing.T) {
	q := Query{
		FindNearestSet: true,
		FindNearest:    FindNearest{QueryVector: []float64{1}, Limit: 0},
	}
	err := q.Validate()
	require.Error(t, err)
	require.Equal(t, values.CodeInvalidArgument, values.CodeOf(err))
}

func TestNotInExcludesMatches(t *testing.T) {
	st := store.New()
	seedUsers(t, st)
	q := Query{
		Target:    Target{CollectionID: "users"},
		Filter:    Filter{Field: "age", Op: NotIn, Value: values.Array(values.Int64(30))},
		HasFilter: true,
	}
	docs, err := Run(st, q)
	require.NoError(t, err)
	var paths []string
	for _, d := range docs {
		paths = append(paths, d.Path)
	}
	require.ElementsMatch(t, []string{"users/bob", "users/carol"}, paths)
}

func TestInRejectsOversizedList(t *testing.T) {
	vals := make([]values.Value, 31)
	for i := range vals {
		vals[i] = values.Int64(int64(i))
	}
	q := Query{
		Target:    Target{CollectionID: "users"},
		Filter:    Filter{Field: "age", Op: In, Value: values.Array(vals...)},
		HasFilter: true,
	}
	err := q.Validate()
	require.Error(t, err)
	require.Equal(t, values.CodeInvalidArgument, values.CodeOf(err))
}

func TestNotEqualRequiresFieldExists(t *testing.T) {
	st := store.New()
	now := time.Now()
	_, err := st.SetDocument("users/dave", values.Map(nil), now)
	require.NoError(t, err)

	q := Query{
		Target:    Target{CollectionID: "users"},
		Filter:    Filter{Field: "age", Op: NotEqual, Value: values.Int64(1)},
		HasFilter: true,
	}
	docs, err := Run(st, q)
	require.NoError(t, err)
	require.Empty(t, docs)
}
