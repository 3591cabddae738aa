package engine

import (
	"time"

	"github.com/cuemby/firestash/pkg/events"
	"github.com/cuemby/firestash/pkg/store"
)

// recordBuilder pairs one write's before/after document state, pending
// classification into an events.Record.
type recordBuilder struct {
	path   string
	before store.Document
	after  store.Document
}

// buildChangeBatch classifies each recordBuilder into a Created, Updated,
// or Deleted events.Record, dropping NoOps (a write whose before and
// after states both show the document absent) — those are never
// published to the change bus — a no-op write is never emitted as a change.
func buildChangeBatch(builders []recordBuilder, commitTime time.Time) *events.ChangeBatch {
	batch := &events.ChangeBatch{CommitTime: commitTime}
	for _, b := range builders {
		kind, ok := classify(b.before, b.after)
		if !ok {
			continue
		}
		batch.Records = append(batch.Records, events.Record{
			Path:       b.path,
			Kind:       kind,
			Before:     b.before,
			After:      b.after,
			CommitTime: commitTime,
		})
	}
	return batch
}

func classify(before, after store.Document) (events.ChangeKind, bool) {
	switch {
	case !before.Exists && after.Exists:
		return events.Created, true
	case before.Exists && after.Exists:
		return events.Updated, true
	case before.Exists && !after.Exists:
		return events.Deleted, true
	default:
		return 0, false
	}
}
