package engine

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/firestash/pkg/aggregate"
	"github.com/cuemby/firestash/pkg/listen"
	"github.com/cuemby/firestash/pkg/query"
	"github.com/cuemby/firestash/pkg/trigger"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/cuemby/firestash/pkg/writes"
	"github.com/stretchr/testify/require"
)

// fixedClock advances by one nanosecond on every call, so tests never
// depend on wall clock jitter between assertions. Successive commits still
// get distinct, microsecond-aligned timestamps from nextCommitTime's
// last-commit-plus-one-microsecond rule.
type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time {
	c.t = c.t.Add(time.Nanosecond)
	return c.t
}

type seqIDGen struct{ n int }

func (g *seqIDGen) NewToken() string {
	g.n++
	return string(rune('a' - 1 + g.n))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(DefaultConfig(), &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, &seqIDGen{})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func setDoc(t *testing.T, e *Engine, path string, fields values.Value) {
	t.Helper()
	res, err := e.BatchWrite(context.Background(), []Write{{Path: path, Fields: fields, HasUpdate: true}})
	require.NoError(t, err)
	require.NoError(t, res.Statuses[0].Err)
}

// TestAggregationWithFilter exercises count/sum/average together over a
// filtered base query.
func TestAggregationWithFilter(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	seed := []struct {
		id     string
		active bool
		points int64
		age    int64
	}{
		{"u1", true, 10, 20},
		{"u2", true, 30, 40},
		{"u3", false, 99, 99},
	}
	for _, u := range seed {
		setDoc(t, e, "users/"+u.id, values.Map(map[string]values.Value{
			"active": values.Bool(u.active),
			"points": values.Int64(u.points),
			"details": values.Map(map[string]values.Value{
				"age": values.Int64(u.age),
			}),
		}))
	}

	q := query.Query{
		Target:    query.Target{CollectionID: "users"},
		HasFilter: true,
		Filter:    query.Filter{Field: "active", Op: query.Equal, Value: values.Bool(true)},
	}
	aggs := []aggregate.Aggregator{
		{Alias: "count", Kind: aggregate.Count},
		{Alias: "sum", Kind: aggregate.Sum, Field: "points"},
		{Alias: "avg", Kind: aggregate.Average, Field: "details.age"},
	}
	ch, err := e.RunAggregationQuery(ctx, q, aggs, nil)
	require.NoError(t, err)
	result := <-ch

	require.Equal(t, values.Int64(2), result.Result["count"])
	require.Equal(t, values.Int64(40), result.Result["sum"])
	require.Equal(t, values.Double(30), result.Result["avg"])
}

// TestCollectionGroupWithDuplicateIDs exercises a collection-group query
// whose matching collections live at different depths and share a
// document id.
func TestCollectionGroupWithDuplicateIDs(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	docs := []struct {
		path string
		seq  int64
	}{
		{"root/p1/orders/o1", 1},
		{"root/p1/orders/dupe", 2},
		{"root/p1/nested/b/orders/deep1", 3},
		{"root/p2/orders/o2", 4},
		{"root/p2/orders/dupe", 5},
	}
	for _, d := range docs {
		setDoc(t, e, d.path, values.Map(map[string]values.Value{"seq": values.Int64(d.seq)}))
	}

	q := query.Query{
		Target:  query.Target{CollectionID: "orders", AllDescendants: true},
		OrderBy: []query.OrderBy{{Field: "seq", Dir: query.Ascending}},
	}
	ch, err := e.RunQuery(ctx, q, nil)
	require.NoError(t, err)

	var gotPaths []string
	for r := range ch {
		if r.Done {
			continue
		}
		gotPaths = append(gotPaths, r.Document.Path)
	}
	require.Equal(t, []string{
		"root/p1/orders/o1",
		"root/p1/orders/dupe",
		"root/p1/nested/b/orders/deep1",
		"root/p2/orders/o2",
		"root/p2/orders/dupe",
	}, gotPaths)
}

// TestTimestampTruncation confirms a written timestamp loses sub-
// microsecond precision on both write and read.
func TestTimestampTruncation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	written := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	setDoc(t, e, "events/e1", values.Map(map[string]values.Value{
		"at": values.Timestamp(written),
	}))

	ch, err := e.BatchGetDocuments(ctx, []string{"events/e1"}, nil)
	require.NoError(t, err)
	doc := (<-ch).Document
	got, _ := doc.Fields.GetField("at")
	require.Equal(t, int64(123456000), int64(got.AsTimestamp().Nanosecond()))
}

// TestServerTimestampTransform confirms a serverTimestamp transform
// resolves to the write's own commit time, both in the returned
// TransformResults and on a subsequent read.
func TestServerTimestampTransform(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res, err := e.BatchWrite(ctx, []Write{{
		Path:      "events/e2",
		Fields:    values.Map(map[string]values.Value{"note": values.String("hi")}),
		HasUpdate: true,
		Transforms: []writes.Transform{
			{FieldPath: "stamped_at", Kind: writes.TransformServerTimestamp},
		},
	}})
	require.NoError(t, err)
	require.NoError(t, res.Statuses[0].Err)
	require.Len(t, res.Statuses[0].Result.TransformResults, 1)
	require.Equal(t, values.KindTimestamp, res.Statuses[0].Result.TransformResults[0].Kind)
	require.True(t, res.Statuses[0].Result.TransformResults[0].AsTimestamp().Equal(res.CommitTime))

	ch, err := e.BatchGetDocuments(ctx, []string{"events/e2"}, nil)
	require.NoError(t, err)
	doc := (<-ch).Document
	stamped, ok := doc.Fields.GetField("stamped_at")
	require.True(t, ok)
	require.True(t, stamped.AsTimestamp().Equal(res.CommitTime))
}

// TestFindNearestLimitBounds checks the nearest-neighbor ordering and its
// limit validation.
func TestFindNearestLimitBounds(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	vecs := map[string][]float64{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}
	for id, v := range vecs {
		setDoc(t, e, "vectors/"+id, values.Map(map[string]values.Value{
			"embedding": values.Vector(v...),
		}))
	}

	base := query.Query{
		Target:         query.Target{CollectionID: "vectors"},
		FindNearestSet: true,
		FindNearest: query.FindNearest{
			VectorField:     "embedding",
			QueryVector:     []float64{1, 0, 0},
			Limit:           2,
			DistanceMeasure: query.Euclidean,
		},
	}
	ch, err := e.RunQuery(ctx, base, nil)
	require.NoError(t, err)
	var gotPaths []string
	for r := range ch {
		if r.Done {
			continue
		}
		gotPaths = append(gotPaths, r.Document.Path)
	}
	require.Len(t, gotPaths, 2)
	require.Equal(t, "vectors/a", gotPaths[0])

	bad := base
	bad.FindNearest.Limit = 0
	_, err = e.RunQuery(ctx, bad, nil)
	require.Error(t, err)
	require.Equal(t, values.CodeInvalidArgument, values.CodeOf(err))

	bad.FindNearest.Limit = 1001
	_, err = e.RunQuery(ctx, bad, nil)
	require.Error(t, err)
	require.Equal(t, values.CodeInvalidArgument, values.CodeOf(err))
}

// TestNonTransactionalCommitClassifiesUpdateAndDelete confirms that Commit
// with a nil transaction token still diffs against the document's prior
// state, so onUpdate fires (not onCreate) for an existing document and
// onDelete fires (not a dropped no-op) for a delete of an existing
// document.
func TestNonTransactionalCommitClassifiesUpdateAndDelete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	setDoc(t, e, "users/alice", values.Map(map[string]values.Value{"name": values.String("Alice")}))

	updates := make(chan trigger.ChangeEvent, 1)
	unsubUpdate := e.router.Subscribe("users/{uid}", trigger.Update, nil, func(ev trigger.ChangeEvent) {
		updates <- ev
	})
	defer unsubUpdate()

	_, err := e.Commit(ctx, nil, []Write{{
		Path:      "users/alice",
		Fields:    values.Map(map[string]values.Value{"name": values.String("Alicia")}),
		HasUpdate: true,
	}})
	require.NoError(t, err)

	select {
	case ev := <-updates:
		require.True(t, ev.Before.Exists)
		require.True(t, ev.After.Exists)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for onUpdate trigger")
	}

	deletes := make(chan trigger.ChangeEvent, 1)
	unsubDelete := e.router.Subscribe("users/{uid}", trigger.Delete, nil, func(ev trigger.ChangeEvent) {
		deletes <- ev
	})
	defer unsubDelete()

	_, err = e.Commit(ctx, nil, []Write{{Path: "users/alice", IsDelete: true}})
	require.NoError(t, err)

	select {
	case ev := <-deletes:
		require.True(t, ev.Before.Exists)
		require.False(t, ev.After.Exists)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for onDelete trigger")
	}
}

// TestTriggerOnCreate confirms an onCreate subscription fires exactly
// once on a document's first write, with params captured from the
// pattern and Before reporting non-existence.
func TestTriggerOnCreate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	type captured struct {
		ev trigger.ChangeEvent
	}
	got := make(chan captured, 1)
	unsubscribe := e.router.Subscribe("users/{uid}", trigger.Create, nil, func(ev trigger.ChangeEvent) {
		got <- captured{ev}
	})
	defer unsubscribe()

	_, err := e.BatchWrite(ctx, []Write{{
		Path:      "users/alice",
		Fields:    values.Map(map[string]values.Value{"name": values.String("Alice")}),
		HasUpdate: true,
	}})
	require.NoError(t, err)

	select {
	case c := <-got:
		require.False(t, c.ev.Before.Exists)
		require.True(t, c.ev.After.Exists)
		require.Equal(t, "alice", c.ev.Params["uid"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for onCreate trigger")
	}

	select {
	case <-got:
		t.Fatal("trigger fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestListenSessionSeesCommittedWrite exercises NewListenSession's
// merged response stream end to end through a document target.
func TestListenSessionSeesCommittedWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	sess, err := e.NewListenSession()
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.AddTarget(listen.Spec{Document: "users/bob"})
	require.NoError(t, err)

	// Initial pass: the document doesn't exist yet, so only the CURRENT
	// control event is expected before any write.
	select {
	case resp := <-sess.Responses():
		require.NotNil(t, resp.Control)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial CURRENT control event")
	}

	setDoc(t, e, "users/bob", values.Map(map[string]values.Value{"name": values.String("Bob")}))

	var sawAdded bool
	for i := 0; i < 2 && !sawAdded; i++ {
		select {
		case resp := <-sess.Responses():
			if resp.DocChange != nil && resp.DocChange.Kind == listen.Added {
				sawAdded = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for Added event")
		}
	}
	require.True(t, sawAdded)
}

// TestCommitTransactionDoesNotConflictWithOwnWrite confirms a read-write
// transaction that reads and then writes the same path commits cleanly,
// instead of losing a race against its own write.
func TestCommitTransactionDoesNotConflictWithOwnWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	setDoc(t, e, "counters/c1", values.Map(map[string]values.Value{"n": values.Int64(1)}))

	tok, err := e.BeginTransaction(ctx, TransactionOptions{ReadWrite: true})
	require.NoError(t, err)

	ch, err := e.BatchGetDocuments(ctx, []string{"counters/c1"}, &tok)
	require.NoError(t, err)
	<-ch

	_, err = e.Commit(ctx, &tok, []Write{{
		Path:      "counters/c1",
		Fields:    values.Map(map[string]values.Value{"n": values.Int64(2)}),
		HasUpdate: true,
	}})
	require.NoError(t, err)
}

// TestCommitTransactionAbortsOnExternalConflict confirms a concurrent
// write to a path this transaction read causes its commit to abort.
func TestCommitTransactionAbortsOnExternalConflict(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	setDoc(t, e, "counters/c2", values.Map(map[string]values.Value{"n": values.Int64(1)}))

	tok, err := e.BeginTransaction(ctx, TransactionOptions{ReadWrite: true})
	require.NoError(t, err)

	ch, err := e.BatchGetDocuments(ctx, []string{"counters/c2"}, &tok)
	require.NoError(t, err)
	<-ch

	// An independent, non-transactional write races ahead of the
	// transaction's commit.
	setDoc(t, e, "counters/c2", values.Map(map[string]values.Value{"n": values.Int64(99)}))

	_, err = e.Commit(ctx, &tok, []Write{{
		Path:      "counters/c2",
		Fields:    values.Map(map[string]values.Value{"n": values.Int64(2)}),
		HasUpdate: true,
	}})
	require.Error(t, err)
	require.Equal(t, values.CodeAborted, values.CodeOf(err))
}
