/*
Package engine wires the store, write pipeline, transaction manager,
query/aggregate evaluators, change bus, listen reactor, and trigger
router into one Engine, exposing the whole thing as a plain Go
interface, Service. Streaming RPCs (BatchGetDocuments, RunQuery,
RunAggregationQuery, Listen) return channels of response structs instead
of a gRPC stream — see DESIGN.md for why an actual gRPC/protobuf
transport is out of scope here.

Engine is a single struct holding every subsystem, constructed once in
New and exposed through typed methods on one receiver.
*/
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/firestash/pkg/aggregate"
	"github.com/cuemby/firestash/pkg/events"
	"github.com/cuemby/firestash/pkg/listen"
	"github.com/cuemby/firestash/pkg/log"
	"github.com/cuemby/firestash/pkg/query"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/trigger"
	"github.com/cuemby/firestash/pkg/txn"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/cuemby/firestash/pkg/writes"
	"github.com/rs/zerolog"
)

// TransactionOptions selects read-only or read-write, exactly one of
// which must be set.
type TransactionOptions struct {
	ReadOnly  bool
	ReadWrite bool
}

// Write, BatchResult alias the write-pipeline's own shapes so Service
// callers don't need to import pkg/writes directly.
type Write = writes.Write
type BatchResult = writes.BatchResult

// WriteStatus is one write's independent outcome within a non-atomic
// BatchWrite call.
type WriteStatus struct {
	Result writes.WriteResult
	Err    error
}

// BatchWriteResult is BatchWrite's per-write outcome list: each write
// commits independently, so one write's failure never affects the rest.
type BatchWriteResult struct {
	CommitTime time.Time
	Statuses   []WriteStatus
}

// Service is the engine's external boundary: every method accepts a
// context.Context for deadline/cancellation propagation.
type Service interface {
	GetProjectID() string

	BeginTransaction(ctx context.Context, opts TransactionOptions) (txn.Token, error)
	Commit(ctx context.Context, tok *txn.Token, ws []Write) (BatchResult, error)
	BatchWrite(ctx context.Context, ws []Write) (BatchWriteResult, error)
	Rollback(ctx context.Context, tok txn.Token) error

	BatchGetDocuments(ctx context.Context, paths []string, tok *txn.Token) (<-chan DocResult, error)
	RunQuery(ctx context.Context, q query.Query, tok *txn.Token) (<-chan QueryResult, error)
	RunAggregationQuery(ctx context.Context, q query.Query, aggs []aggregate.Aggregator, tok *txn.Token) (<-chan AggResult, error)

	ListDocuments(ctx context.Context, parent, collectionID string, showMissing bool) ([]store.Document, error)
	ListCollectionIds(ctx context.Context, parent string) ([]string, error)

	NewListenSession() (*ListenSession, error)
	PartitionQueryStream(ctx context.Context, q query.Query) ([]Cursor, error)

	Close() error
}

// Cursor is one partition boundary returned by PartitionQueryStream. This
// engine never distributes a query, so it always returns the single
// cursor pair covering the whole result set.
type Cursor struct {
	StartAt []values.Value
	EndAt   []values.Value
}

// DocResult is one response from BatchGetDocuments's stream.
type DocResult struct {
	Document store.Document
	ReadTime time.Time
}

// QueryResult is one response from RunQuery's stream. Done is set on the
// final, document-less message once every result has been sent.
type QueryResult struct {
	Document store.Document
	ReadTime time.Time
	Done     bool
}

// AggResult is the single response RunAggregationQuery's stream carries.
type AggResult struct {
	Result   map[string]values.Value
	ReadTime time.Time
}

// Engine owns the document store, the write/transaction/query/aggregate
// pipelines, the change bus, the listen reactor, and the trigger router
// for one project/database pair.
type Engine struct {
	cfg   Config
	clock Clock
	idGen txn.IDGen

	store   store.Store
	txns    *txn.Manager
	broker  *events.Broker
	reactor *listen.Reactor
	router  *trigger.Router

	logger zerolog.Logger

	mu         sync.Mutex
	lastCommit time.Time
	closed     bool
}

// New constructs a fresh Engine. clock and idGen may be nil, in which
// case production defaults (SystemClock, txn.DefaultIDGen) are used.
func New(cfg Config, clock Clock, idGen txn.IDGen) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	st := store.New()
	broker := events.NewBroker()
	broker.Start()
	logger := log.WithDatabase(cfg.Project, cfg.Database)

	e := &Engine{
		cfg:        cfg,
		clock:      clock,
		idGen:      idGen,
		store:      st,
		txns:       txn.NewManager(idGen),
		broker:     broker,
		reactor:    listen.NewReactor(st, broker, logger),
		router:     trigger.NewRouter(logger),
		logger:     logger,
		lastCommit: clock.Now(),
	}
	go e.reactor.Run()
	go e.routeChanges()
	return e
}

// routeChanges feeds every committed change record to the trigger router,
// via its own change-bus subscription so trigger dispatch never competes
// with the listen reactor's subscription for delivery order.
func (e *Engine) routeChanges() {
	sub := e.broker.Subscribe()
	defer e.broker.Unsubscribe(sub)
	for batch := range sub {
		for _, rec := range batch.Records {
			e.router.Route(rec)
		}
	}
}

func (e *Engine) GetProjectID() string { return e.cfg.Project }

// nextCommitTime returns the max of the clock's current time and the
// last commit time plus one microsecond, microsecond-aligned.
func (e *Engine) nextCommitTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := values.Timestamp(e.clock.Now()).AsTimestamp()
	next := values.Timestamp(e.lastCommit.Add(time.Microsecond)).AsTimestamp()
	if now.After(next) {
		next = now
	}
	e.lastCommit = next
	return next
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return values.Unavailable("engine is closed")
	}
	return nil
}

// Close terminates the listen reactor and change bus. Idempotent; every
// subsequent operation fails with Unavailable.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.reactor.Stop()
	e.broker.Stop()
	return nil
}

// Reset empties the store. It does not terminate any live listen
// target or trigger subscription; callers that need that should close
// and recreate the Engine instead.
func (e *Engine) Reset() {
	e.store.Reset()
}

// Snapshot dumps the whole store as a JSON-friendly tree, for the CLI's
// dump command and tests. The engine never persists this on its own.
func (e *Engine) Snapshot() store.Snapshot {
	return e.store.Snapshot()
}

// Restore replaces the store's contents from a snapshot taken by
// Snapshot, for the CLI's reset/dump round trip.
func (e *Engine) Restore(snap store.Snapshot) {
	e.store.Restore(snap)
}
