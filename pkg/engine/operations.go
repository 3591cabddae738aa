package engine

import (
	"context"
	"time"

	"github.com/cuemby/firestash/pkg/aggregate"
	"github.com/cuemby/firestash/pkg/metrics"
	"github.com/cuemby/firestash/pkg/query"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/txn"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/cuemby/firestash/pkg/writes"
)

func (e *Engine) BeginTransaction(ctx context.Context, opts TransactionOptions) (txn.Token, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	if opts.ReadOnly == opts.ReadWrite {
		return "", values.InvalidArgument("options", "exactly one of readOnly or readWrite must be set")
	}
	kind := txn.ReadOnly
	if opts.ReadWrite {
		kind = txn.ReadWrite
	}
	tok := e.txns.Begin(kind, e.clock.Now())
	metrics.TransactionsActive.Inc()
	return tok, nil
}

func (e *Engine) Commit(ctx context.Context, tok *txn.Token, ws []Write) (BatchResult, error) {
	if err := e.checkOpen(); err != nil {
		return BatchResult{}, err
	}
	commitTime := e.nextCommitTime()

	prior := make(map[string]store.Document, len(ws))
	for _, w := range ws {
		d, err := e.store.GetDocument(w.Path)
		if err != nil {
			return BatchResult{}, err
		}
		prior[w.Path] = d
	}

	if tok != nil {
		// Conflict-check the transaction's read-set against the
		// store BEFORE applying its own writes: applying first would
		// advance update_time on paths this same transaction both
		// read and wrote, making it lose a race against itself.
		if err := e.txns.PrepareCommit(*tok, e.store, len(ws) > 0); err != nil {
			metrics.CommitsTotal.WithLabelValues("failed").Inc()
			return BatchResult{}, err
		}
	}

	result, err := writes.Apply(e.store, ws, commitTime)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues("failed").Inc()
		return BatchResult{}, err
	}

	if tok != nil {
		metrics.TransactionsActive.Dec()
		metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	}

	e.publishChanges(result, prior, commitTime)
	metrics.CommitsTotal.WithLabelValues("committed").Inc()
	return result, nil
}

// BatchWrite applies each write independently: a failing write does not
// prevent the others from committing.
func (e *Engine) BatchWrite(ctx context.Context, ws []Write) (BatchWriteResult, error) {
	if err := e.checkOpen(); err != nil {
		return BatchWriteResult{}, err
	}
	commitTime := e.nextCommitTime()
	out := BatchWriteResult{CommitTime: commitTime, Statuses: make([]WriteStatus, len(ws))}
	for i, w := range ws {
		prior, _ := e.store.GetDocument(w.Path)
		res, err := writes.Apply(e.store, []Write{w}, commitTime)
		if err != nil {
			out.Statuses[i] = WriteStatus{Err: err}
			continue
		}
		out.Statuses[i] = WriteStatus{Result: res.Results[0]}
		e.publishChanges(res, map[string]store.Document{w.Path: prior}, commitTime)
	}
	return out, nil
}

func (e *Engine) Rollback(ctx context.Context, tok txn.Token) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := e.txns.Rollback(tok); err != nil {
		return err
	}
	metrics.TransactionsActive.Dec()
	metrics.TransactionsTotal.WithLabelValues("rolled_back").Inc()
	return nil
}

// publishChanges derives one events.Record per write from prior/post
// document state and publishes a ChangeBatch to the bus.
func (e *Engine) publishChanges(result BatchResult, prior map[string]store.Document, commitTime time.Time) {
	records := make([]recordBuilder, 0, len(result.Documents))
	for path, after := range result.Documents {
		before := prior[path]
		records = append(records, recordBuilder{path: path, before: before, after: after})
	}
	batch := buildChangeBatch(records, commitTime)
	if len(batch.Records) == 0 {
		return
	}
	e.broker.Publish(batch)
}

func (e *Engine) readTimeFor(tok *txn.Token) (time.Time, error) {
	if tok == nil {
		return e.clock.Now(), nil
	}
	return e.txns.ReadTime(*tok)
}

func (e *Engine) recordRead(tok *txn.Token, path string, updateTime time.Time) error {
	if tok == nil {
		return nil
	}
	return e.txns.RecordRead(*tok, path, updateTime)
}

func (e *Engine) BatchGetDocuments(ctx context.Context, paths []string, tok *txn.Token) (<-chan DocResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	readTime, err := e.readTimeFor(tok)
	if err != nil {
		return nil, err
	}

	out := make(chan DocResult, len(paths))
	for _, p := range paths {
		doc, err := e.store.GetDocument(p)
		if err != nil {
			close(out)
			return nil, err
		}
		if err := e.recordRead(tok, p, doc.UpdateTime); err != nil {
			close(out)
			return nil, err
		}
		out <- DocResult{Document: doc, ReadTime: readTime}
	}
	close(out)
	return out, nil
}

func (e *Engine) RunQuery(ctx context.Context, q query.Query, tok *txn.Token) (<-chan QueryResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	readTime, err := e.readTimeFor(tok)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	docs, err := query.Run(e.store, q)
	kindLabel := "collection"
	if q.Target.AllDescendants {
		kindLabel = "collection_group"
	}
	if q.FindNearestSet {
		kindLabel = "find_nearest"
	}
	metrics.QueriesTotal.WithLabelValues(kindLabel).Inc()
	timer.ObserveDurationVec(metrics.QueryDuration, kindLabel)
	if err != nil {
		return nil, err
	}

	out := make(chan QueryResult, len(docs)+1)
	for _, d := range docs {
		if err := e.recordRead(tok, d.Path, d.UpdateTime); err != nil {
			close(out)
			return nil, err
		}
		out <- QueryResult{Document: d, ReadTime: readTime}
	}
	out <- QueryResult{ReadTime: readTime, Done: true}
	close(out)
	return out, nil
}

func (e *Engine) RunAggregationQuery(ctx context.Context, q query.Query, aggs []aggregate.Aggregator, tok *txn.Token) (<-chan AggResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	readTime, err := e.readTimeFor(tok)
	if err != nil {
		return nil, err
	}
	result, err := aggregate.Run(e.store, q, aggs)
	if err != nil {
		return nil, err
	}
	out := make(chan AggResult, 1)
	out <- AggResult{Result: result, ReadTime: readTime}
	close(out)
	return out, nil
}

func (e *Engine) ListDocuments(ctx context.Context, parent, collectionID string, showMissing bool) ([]store.Document, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ListDocuments(parent, collectionID, showMissing)
}

func (e *Engine) ListCollectionIds(ctx context.Context, parent string) ([]string, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ListCollectionIDs(parent)
}

// PartitionQueryStream always returns the single partition covering the
// whole query: this engine never distributes a
// query across workers.
func (e *Engine) PartitionQueryStream(ctx context.Context, q query.Query) ([]Cursor, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return []Cursor{{}}, nil
}
