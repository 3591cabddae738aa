/*
Package listen implements the listen reactor: document and query targets
that re-evaluate against each committed change batch and emit
Added/Modified/Removed diffs, followed by a consistency checkpoint.

The Reactor holds one change-bus subscription and one goroutine (Run)
ranging over it; for every batch it re-evaluates each live target's query
or document read in turn and diffs the result against that target's prior
snapshot to compute Added/Modified/Removed.
*/
package listen

import (
	"sync"
	"time"

	"github.com/cuemby/firestash/pkg/events"
	"github.com/cuemby/firestash/pkg/query"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/rs/zerolog"
)

// ChangeKind distinguishes a target's diff events.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

// DocChange is one document event delivered to a target's Events channel.
type DocChange struct {
	Kind ChangeKind
	Doc  store.Document
}

// TargetChangeKind marks a control event interleaved with DocChanges.
type TargetChangeKind int

const (
	Current TargetChangeKind = iota
	Checkpoint
)

// TargetChange is a control event: CURRENT after the first full pass, and
// a consistency checkpoint at every batch's commit time thereafter.
type TargetChange struct {
	Kind       TargetChangeKind
	ReadTime   time.Time
}

// Event is either a DocChange or a TargetChange, delivered to a Target's
// Events channel in the order the per-batch re-evaluation algorithm produces them.
type Event struct {
	Doc     *DocChange
	Control *TargetChange
}

// Spec is what a target watches: exactly one of Document or Query.
type Spec struct {
	Document string // document path, for a document target
	Query    query.Query
	IsQuery  bool
}

// Target is one live listener: its current snapshot and its event
// channel.
type Target struct {
	id       int64
	spec     Spec
	st       store.Store
	events   chan Event
	snapshot map[string]snapEntry // path -> last-seen state
	current  bool
	mu       sync.Mutex
	detached bool
}

type snapEntry struct {
	doc store.Document
}

// Events returns the target's event channel. Closed on detach.
func (t *Target) Events() <-chan Event { return t.events }

// ID returns the target's identifier, stable for its lifetime.
func (t *Target) ID() int64 { return t.id }

// Reactor drives every live target from a change-bus subscription.
type Reactor struct {
	st     store.Store
	broker *events.Broker
	sub    events.Subscriber
	logger zerolog.Logger

	mu      sync.Mutex
	targets map[int64]*Target
	nextID  int64
	stopCh  chan struct{}
	stopped bool
}

func NewReactor(st store.Store, broker *events.Broker, logger zerolog.Logger) *Reactor {
	return &Reactor{
		st:      st,
		broker:  broker,
		sub:     broker.Subscribe(),
		logger:  logger,
		targets: make(map[int64]*Target),
		stopCh:  make(chan struct{}),
	}
}

// Run drains the reactor's change-bus subscription until Stop is called.
// Intended to run in its own goroutine.
func (r *Reactor) Run() {
	for {
		select {
		case batch, ok := <-r.sub:
			if !ok {
				return
			}
			r.handleBatch(batch)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reactor) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.broker.Unsubscribe(r.sub)
}

// Listen registers a new target and runs its initial full pass
// synchronously (so the caller's first read is never missed), returning
// the live Target.
func (r *Reactor) Listen(spec Spec) (*Target, error) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	t := &Target{
		id:       id,
		spec:     spec,
		st:       r.st,
		events:   make(chan Event, 256),
		snapshot: make(map[string]snapEntry),
	}

	if err := r.evaluate(t, time.Now()); err != nil {
		return nil, err
	}
	t.events <- Event{Control: &TargetChange{Kind: Current, ReadTime: time.Now()}}
	t.current = true

	r.mu.Lock()
	r.targets[id] = t
	r.mu.Unlock()
	return t, nil
}

// Detach stops delivering batches to t. Events already queued from
// batches drained before detachment are still delivered.
func (r *Reactor) Detach(t *Target) {
	r.mu.Lock()
	delete(r.targets, t.id)
	r.mu.Unlock()

	t.mu.Lock()
	if !t.detached {
		t.detached = true
		close(t.events)
	}
	t.mu.Unlock()
}

func (r *Reactor) handleBatch(batch *events.ChangeBatch) {
	r.mu.Lock()
	targets := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		targets = append(targets, t)
	}
	r.mu.Unlock()

	for _, t := range targets {
		if err := r.evaluate(t, batch.CommitTime); err != nil {
			r.logger.Error().Err(err).Int64("target_id", t.id).Msg("listen target re-evaluation failed")
			continue
		}
		t.mu.Lock()
		detached := t.detached
		t.mu.Unlock()
		if detached {
			continue
		}
		t.events <- Event{Control: &TargetChange{Kind: Checkpoint, ReadTime: batch.CommitTime}}
	}
}

// evaluate re-runs t's spec and emits the Added/Modified/Removed diff
// against its previous snapshot.
func (r *Reactor) evaluate(t *Target, readTime time.Time) error {
	var docs []store.Document
	if t.spec.IsQuery {
		var err error
		docs, err = query.Run(t.st, t.spec.Query)
		if err != nil {
			return err
		}
	} else {
		doc, err := t.st.GetDocument(t.spec.Document)
		if err != nil {
			return err
		}
		if doc.Exists {
			docs = []store.Document{doc}
		}
	}

	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		seen[d.Path] = true
		prev, existed := t.snapshot[d.Path]
		if !existed {
			t.events <- Event{Doc: &DocChange{Kind: Added, Doc: d}}
		} else if !prev.doc.UpdateTime.Equal(d.UpdateTime) {
			t.events <- Event{Doc: &DocChange{Kind: Modified, Doc: d}}
		}
		t.snapshot[d.Path] = snapEntry{doc: d}
	}
	for path, prev := range t.snapshot {
		if !seen[path] {
			t.events <- Event{Doc: &DocChange{Kind: Removed, Doc: prev.doc}}
			delete(t.snapshot, path)
		}
	}
	return nil
}
