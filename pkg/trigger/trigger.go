/*
Package trigger implements the trigger router: matching committed change
records against {name}-segment path patterns and dispatching change
events to registered subscribers, in commit order per subscription and
with per-subscriber failure isolation.

Each subscription gets its own channel and dispatch goroutine, isolated
from every other subscription's handler, the same independent-subscriber
fan-out the change bus itself uses. Pattern matching is a segment-by-
segment comparison against a path, capturing {name}-style placeholders.
*/
package trigger

import (
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/firestash/pkg/events"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/rs/zerolog"
)

// Kind mirrors events.ChangeKind plus the "write" catch-all filter a
// subscription may register for.
type Kind int

const (
	Create Kind = iota
	Update
	Delete
	Write // matches Create, Update, and Delete
)

// ChangeEvent is handed to a subscriber callback for one matched record.
type ChangeEvent struct {
	Before       store.Document
	After        store.Document
	Params       map[string]string
	ResourceName string
	CommitTime   int64 // unix micros, set by the router from events.Record.CommitTime
	EventID      string
}

// Predicate optionally vetoes delivery of a matched change to a specific
// subscriber.
type Predicate func(ev ChangeEvent) bool

// Handler receives matched change events. Handlers run synchronously on
// the router's dispatch loop for their subscription; a panicking or
// slow handler only affects its own subscription.
type Handler func(ev ChangeEvent)

type subscription struct {
	id        int64
	pattern   []string // pattern segments, "{name}" marks a capture
	kind      Kind
	predicate Predicate
	handler   Handler
	ch        chan dispatch
	done      chan struct{}
}

type dispatch struct {
	ev ChangeEvent
}

// Router matches committed records against registered subscriptions and
// dispatches matches to each subscription's own goroutine, preserving
// commit order per subscription.
type Router struct {
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[int64]*subscription
	nextID int64
	nextEv int64
}

func NewRouter(logger zerolog.Logger) *Router {
	return &Router{subs: make(map[int64]*subscription), logger: logger}
}

// Subscribe registers a handler for every committed record whose path
// matches pattern and whose kind matches kind (Write matches all three).
// Returns an unsubscribe function.
func (r *Router) Subscribe(pattern string, kind Kind, predicate Predicate, handler Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	sub := &subscription{
		id:        id,
		pattern:   strings.Split(pattern, "/"),
		kind:      kind,
		predicate: predicate,
		handler:   handler,
		ch:        make(chan dispatch, 256),
		done:      make(chan struct{}),
	}
	r.subs[id] = sub
	r.mu.Unlock()

	go r.run(sub)

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		close(sub.done)
	}
}

func (r *Router) run(sub *subscription) {
	for {
		select {
		case d := <-sub.ch:
			r.invoke(sub, d.ev)
		case <-sub.done:
			return
		}
	}
}

// invoke calls sub.handler, recovering from a panic so one failing
// subscriber cannot affect the router or other subscriptions.
func (r *Router) invoke(sub *subscription, ev ChangeEvent) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Int64("subscription_id", sub.id).Msg("trigger subscriber panicked")
		}
	}()
	sub.handler(ev)
}

// Route matches rec against every subscription and enqueues a ChangeEvent
// for each match, in the order Route is called (so callers must call
// Route once per record in commit order).
func (r *Router) Route(rec events.Record) {
	kind := recordKind(rec.Kind)
	if kind == -1 {
		return // NoOp, never emitted
	}

	r.mu.Lock()
	subs := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		if sub.kind != Write && sub.kind != kind {
			continue
		}
		params, ok := match(sub.pattern, rec.Path)
		if !ok {
			continue
		}

		r.mu.Lock()
		r.nextEv++
		evID := strconv.FormatInt(r.nextEv, 10)
		r.mu.Unlock()

		ev := ChangeEvent{
			Before:       rec.Before,
			After:        rec.After,
			Params:       params,
			ResourceName: rec.Path,
			CommitTime:   rec.CommitTime.UnixMicro(),
			EventID:      evID,
		}
		if sub.predicate != nil && !sub.predicate(ev) {
			continue
		}
		select {
		case sub.ch <- dispatch{ev: ev}:
		case <-sub.done:
		}
	}
}

func recordKind(k events.ChangeKind) Kind {
	switch k {
	case events.Created:
		return Create
	case events.Updated:
		return Update
	case events.Deleted:
		return Delete
	default:
		return -1
	}
}

// match checks whether path's segments align with pattern's, capturing
// each {name} segment into the returned map. ok is false if the segment
// counts differ or any literal segment mismatches.
func match(pattern []string, path string) (map[string]string, bool) {
	segs := strings.Split(path, "/")
	if len(segs) != len(pattern) {
		return nil, false
	}
	params := make(map[string]string)
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			params[p[1:len(p)-1]] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}
