package listen

import (
	"testing"
	"time"

	"github.com/cuemby/firestash/pkg/events"
	"github.com/cuemby/firestash/pkg/query"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newReactor(t *testing.T, st store.Store) (*Reactor, *events.Broker) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	r := NewReactor(st, broker, zerolog.Nop())
	go r.Run()
	t.Cleanup(func() {
		r.Stop()
		broker.Stop()
	})
	return r, broker
}

func drainDocEvents(t *testing.T, target *Target, n int) []DocChange {
	t.Helper()
	var out []DocChange
	for len(out) < n {
		select {
		case e := <-target.Events():
			if e.Doc != nil {
				out = append(out, *e.Doc)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %d doc events, got %d", n, len(out))
		}
	}
	return out
}

func TestDocumentTargetInitialAdded(t *testing.T) {
	st := store.New()
	now := time.Now()
	_, err := st.SetDocument("users/alice", values.Map(nil), now)
	require.NoError(t, err)

	r, _ := newReactor(t, st)
	target, err := r.Listen(Spec{Document: "users/alice"})
	require.NoError(t, err)

	changes := drainDocEvents(t, target, 1)
	require.Equal(t, Added, changes[0].Kind)
}

func TestQueryTargetSeesNewDocumentAfterCommit(t *testing.T) {
	st := store.New()
	r, broker := newReactor(t, st)

	target, err := r.Listen(Spec{IsQuery: true, Query: query.Query{Target: query.Target{CollectionID: "users"}}})
	require.NoError(t, err)

	now := time.Now()
	doc, err := st.SetDocument("users/bob", values.Map(nil), now)
	require.NoError(t, err)
	broker.Publish(&events.ChangeBatch{CommitTime: doc.UpdateTime})

	changes := drainDocEvents(t, target, 1)
	require.Equal(t, Added, changes[0].Kind)
	require.Equal(t, "users/bob", changes[0].Doc.Path)
}

func TestDetachStopsFurtherDelivery(t *testing.T) {
	st := store.New()
	r, broker := newReactor(t, st)

	target, err := r.Listen(Spec{IsQuery: true, Query: query.Query{Target: query.Target{CollectionID: "users"}}})
	require.NoError(t, err)
	r.Detach(target)

	now := time.Now()
	_, err = st.SetDocument("users/carol", values.Map(nil), now)
	require.NoError(t, err)
	broker.Publish(&events.ChangeBatch{CommitTime: now})

	time.Sleep(50 * time.Millisecond)
	// Only events queued before Detach (the initial CURRENT) remain; no
	// document event for carol is delivered, and the channel is closed.
	for ev := range target.Events() {
		require.Nil(t, ev.Doc)
	}
	_, ok := <-target.Events()
	require.False(t, ok)
}
