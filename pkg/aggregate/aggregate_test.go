package aggregate

import (
	"testing"
	"time"

	"github.com/cuemby/firestash/pkg/query"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/stretchr/testify/require"
)

func TestCountSumAverage(t *testing.T) {
	st := store.New()
	now := time.Now()
	_, _ = st.SetDocument("orders/1", values.Map(map[string]values.Value{"total": values.Int64(10)}), now)
	_, _ = st.SetDocument("orders/2", values.Map(map[string]values.Value{"total": values.Int64(20)}), now)
	_, _ = st.SetDocument("orders/3", values.Map(map[string]values.Value{"total": values.String("n/a")}), now)

	q := query.Query{Target: query.Target{CollectionID: "orders"}}
	out, err := Run(st, q, []Aggregator{
		{Alias: "n", Kind: Count},
		{Alias: "total", Kind: Sum, Field: "total"},
		{Alias: "avg", Kind: Average, Field: "total"},
	})
	require.NoError(t, err)
	require.Equal(t, values.Int64(3), out["n"])
	require.Equal(t, values.Int64(30), out["total"])
	require.Equal(t, values.Double(15), out["avg"])
}

func TestSumPromotesToDoubleOnMixedContributions(t *testing.T) {
	st := store.New()
	now := time.Now()
	_, _ = st.SetDocument("orders/1", values.Map(map[string]values.Value{"total": values.Int64(10)}), now)
	_, _ = st.SetDocument("orders/2", values.Map(map[string]values.Value{"total": values.Double(2.5)}), now)

	q := query.Query{Target: query.Target{CollectionID: "orders"}}
	out, err := Run(st, q, []Aggregator{{Alias: "total", Kind: Sum, Field: "total"}})
	require.NoError(t, err)
	require.Equal(t, values.Double(12.5), out["total"])
}

func TestAverageOfEmptyIsNull(t *testing.T) {
	st := store.New()
	q := query.Query{Target: query.Target{CollectionID: "missing"}}
	out, err := Run(st, q, []Aggregator{{Alias: "avg", Kind: Average, Field: "total"}})
	require.NoError(t, err)
	require.True(t, out["avg"].IsNull())
}

func TestSumOfEmptyIsZero(t *testing.T) {
	st := store.New()
	q := query.Query{Target: query.Target{CollectionID: "missing"}}
	out, err := Run(st, q, []Aggregator{{Alias: "total", Kind: Sum, Field: "total"}})
	require.NoError(t, err)
	require.Equal(t, values.Int64(0), out["total"])
}
