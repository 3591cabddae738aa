/*
Package writes implements the write/commit pipeline: applying a batch of
update/delete writes with field transforms, update masks, and
preconditions, atomically at one commit time.

Apply dispatches each Write by its populated shape (update vs. delete) to
a store call, the same way a command-log applier switches on a command's
op before routing it — except the whole batch commits atomically instead
of one entry at a time.
*/
package writes

import (
	"time"

	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
)

// TransformKind identifies a field transform operation.
type TransformKind int

const (
	TransformServerTimestamp TransformKind = iota
	TransformIncrement
	TransformMaximum
	TransformMinimum
	TransformArrayUnion
	TransformArrayRemove
)

// Transform is one server-side field mutation applied after the base
// update, addressing a dotted field path.
type Transform struct {
	FieldPath string
	Kind      TransformKind
	Operand   values.Value // unused for TransformServerTimestamp
}

// Precondition constrains whether a write may apply.
type Precondition struct {
	HasExists  bool
	Exists     bool
	HasUpdateTime bool
	UpdateTime time.Time
}

// Write is one write within a batch: exactly one of the Update/Delete
// shapes, optionally decorated with Transforms and a Precondition. A
// Delete combined with Transforms is rejected at Apply time.
type Write struct {
	Path string

	IsDelete bool

	// Update shape (ignored when IsDelete).
	Fields     values.Value // Map value
	UpdateMask []string     // nil means full replacement
	HasUpdate  bool         // true if this write carries an update (vs. transforms-only)

	Transforms []Transform

	Precondition Precondition
	HasPrecondition bool
}

// WriteResult is the per-write outcome of a successful Apply.
type WriteResult struct {
	UpdateTime       time.Time
	TransformResults []values.Value
}

// BatchResult is the outcome of a successful Apply.
type BatchResult struct {
	CommitTime time.Time
	Results    []WriteResult
	// Documents holds the post-write document state, keyed by path, for
	// callers (the engine's change publishing) that need it without a
	// second store round trip.
	Documents map[string]store.Document
}

// Validate checks batch-independent shape rules that are rejected
// regardless of store state: a delete carrying transforms.
func (w Write) Validate() error {
	if w.IsDelete && len(w.Transforms) > 0 {
		return values.InvalidArgument("writes", "a delete write may not carry field transforms")
	}
	if _, err := values.ParsePath(w.Path, values.DocumentPath); err != nil {
		return err
	}
	return nil
}

// Apply runs a batch of writes atomically against st, stamping every
// write in the batch with the same commit time. Either every write's
// effect becomes visible, or (on any validation/precondition failure)
// none does.
func Apply(st store.Store, ws []Write, commitTime time.Time) (BatchResult, error) {
	for _, w := range ws {
		if err := w.Validate(); err != nil {
			return BatchResult{}, err
		}
	}

	// Precondition check pass: validate every write's precondition against
	// current store state before mutating anything, so the batch is
	// all-or-nothing.
	for _, w := range ws {
		if !w.HasPrecondition {
			continue
		}
		cur, err := st.GetDocument(w.Path)
		if err != nil {
			return BatchResult{}, err
		}
		if err := checkPrecondition(w.Precondition, cur); err != nil {
			return BatchResult{}, err
		}
	}

	results := make([]WriteResult, len(ws))
	docs := make(map[string]store.Document, len(ws))
	for i, w := range ws {
		res, doc, err := applyOne(st, w, commitTime)
		if err != nil {
			return BatchResult{}, err
		}
		results[i] = res
		docs[w.Path] = doc
	}

	return BatchResult{CommitTime: commitTime, Results: results, Documents: docs}, nil
}

func checkPrecondition(p Precondition, cur store.Document) error {
	if p.HasExists && p.Exists != cur.Exists {
		if p.Exists {
			return values.NotFound("document %q does not exist", cur.Path)
		}
		return values.FailedPrecondition("document %q already exists", cur.Path)
	}
	if p.HasUpdateTime {
		if !cur.Exists {
			return values.FailedPrecondition("document %q does not exist", cur.Path)
		}
		if !cur.UpdateTime.Equal(p.UpdateTime) {
			return values.FailedPrecondition("document %q updateTime precondition mismatch", cur.Path)
		}
	}
	return nil
}

func applyOne(st store.Store, w Write, commitTime time.Time) (WriteResult, store.Document, error) {
	if w.IsDelete {
		if err := st.DeleteDocument(w.Path, commitTime); err != nil {
			return WriteResult{}, store.Document{}, err
		}
		doc, err := st.GetDocument(w.Path)
		if err != nil {
			return WriteResult{}, store.Document{}, err
		}
		return WriteResult{UpdateTime: commitTime}, doc, nil
	}

	cur, err := st.GetDocument(w.Path)
	if err != nil {
		return WriteResult{}, store.Document{}, err
	}

	base := values.Map(nil)
	if cur.Exists {
		base = cur.Fields
	}

	var merged values.Value
	if w.HasUpdate {
		if w.UpdateMask == nil {
			merged = w.Fields
		} else {
			merged = base
			for _, fp := range w.UpdateMask {
				if fv, ok := w.Fields.GetField(fp); ok {
					merged = merged.WithField(fp, fv)
				} else {
					merged = merged.WithoutField(fp)
				}
			}
		}
	} else {
		merged = base
	}

	transformResults := make([]values.Value, len(w.Transforms))
	for i, t := range w.Transforms {
		nv, tv, err := applyTransform(merged, t, commitTime)
		if err != nil {
			return WriteResult{}, store.Document{}, err
		}
		merged = nv
		transformResults[i] = tv
	}

	doc, err := st.SetDocument(w.Path, merged, commitTime)
	if err != nil {
		return WriteResult{}, store.Document{}, err
	}
	return WriteResult{UpdateTime: commitTime, TransformResults: transformResults}, doc, nil
}
