package store

import (
	"time"

	"github.com/cuemby/firestash/pkg/values"
)

// Snapshot is a JSON-friendly dump of the whole store, used by the
// firestash CLI's dump and reset commands — the engine itself never
// persists to disk during normal operation.
type Snapshot struct {
	Documents []SnapshotDoc `json:"documents"`
}

type SnapshotDoc struct {
	Path       string             `json:"path"`
	Fields     values.WireValue   `json:"fields"`
	CreateTime time.Time          `json:"createTime"`
	UpdateTime time.Time          `json:"updateTime"`
	Exists     bool               `json:"exists"`
}

func (s *memStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out Snapshot
	for collPath, coll := range s.collections {
		for id, e := range coll.docs {
			path := values.JoinPath(collPath, id)
			sd := SnapshotDoc{
				Path:       path,
				CreateTime: e.doc.CreateTime,
				UpdateTime: e.doc.UpdateTime,
				Exists:     e.doc.Exists,
			}
			if e.doc.Exists {
				sd.Fields = values.Encode(e.doc.Fields)
			}
			out.Documents = append(out.Documents, sd)
		}
	}
	return out
}

func (s *memStore) Restore(snap Snapshot) {
	s.Reset()
	for _, sd := range snap.Documents {
		if !sd.Exists {
			continue
		}
		fields, err := values.Decode(sd.Fields)
		if err != nil {
			continue
		}
		if doc, err := s.SetDocument(sd.Path, fields, sd.UpdateTime); err == nil {
			s.mu.Lock()
			e, _ := s.entry(sd.Path, true)
			e.doc.CreateTime = sd.CreateTime
			e.doc.UpdateTime = doc.UpdateTime
			s.mu.Unlock()
		}
	}
}
