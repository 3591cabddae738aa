/*
Package store implements the hierarchical document store: a tree of
collections and documents with per-document create/update times,
subcollection listing, and point reads.

A narrow Store interface sits in front of one concrete, mutex-guarded
implementation, in-memory rather than disk-backed, since durability and
multi-process concurrency are not goals of this engine.
*/
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/firestash/pkg/values"
)

// Document is a point-in-time snapshot of a stored document.
type Document struct {
	Path       string // full relative document path, e.g. "users/alice"
	Fields     values.Value
	CreateTime time.Time
	UpdateTime time.Time
	Exists     bool
}

// Store is the document-store interface the write pipeline, query
// evaluator, and transaction manager read and write through.
type Store interface {
	GetDocument(path string) (Document, error)
	SetDocument(path string, fields values.Value, commitTime time.Time) (Document, error)
	DeleteDocument(path string, commitTime time.Time) error
	ListDocuments(parentDoc, collectionID string, showMissing bool) ([]Document, error)
	ListCollectionIDs(documentPath string) ([]string, error)
	// ListCollectionGroup returns every document that is a direct child of
	// any collection in the store whose id equals collectionID, at any
	// nesting depth.
	ListCollectionGroup(collectionID string) ([]Document, error)
	Reset()
	Snapshot() Snapshot
	Restore(Snapshot)
}

// node is one collection's worth of state: the documents directly inside
// it, plus the set of subcollection ids hosted under each document id.
type node struct {
	docs map[string]*docEntry // document id -> entry
}

type docEntry struct {
	doc   Document // Exists=false entries are placeholders kept only because they host subcollections
	subs  map[string]struct{}
}

// memStore is the concrete in-memory Store.
type memStore struct {
	mu sync.RWMutex
	// collections maps a collection path (may be multi-segment, e.g.
	// "users" or "users/alice/posts") to its node.
	collections map[string]*node
}

func New() Store {
	return &memStore{collections: make(map[string]*node)}
}

func (s *memStore) collection(path string, create bool) *node {
	c, ok := s.collections[path]
	if !ok {
		if !create {
			return nil
		}
		c = &node{docs: make(map[string]*docEntry)}
		s.collections[path] = c
	}
	return c
}

func (s *memStore) entry(path string, create bool) (*docEntry, error) {
	collPath, docID, err := values.ParentCollectionPath(path)
	if err != nil {
		return nil, err
	}
	coll := s.collection(collPath, create)
	if coll == nil {
		return nil, nil
	}
	e, ok := coll.docs[docID]
	if !ok {
		if !create {
			return nil, nil
		}
		e = &docEntry{subs: make(map[string]struct{})}
		coll.docs[docID] = e
	}
	return e, nil
}

func (s *memStore) GetDocument(path string) (Document, error) {
	if _, err := values.ParsePath(path, values.DocumentPath); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.entry(path, false)
	if err != nil {
		return Document{}, err
	}
	if e == nil || !e.doc.Exists {
		return Document{Path: path, Exists: false}, nil
	}
	return e.doc, nil
}

// SetDocument replaces the document at path with fields, stamping
// CreateTime on first creation (or re-creation after delete) and always
// refreshing UpdateTime to commitTime.
func (s *memStore) SetDocument(path string, fields values.Value, commitTime time.Time) (Document, error) {
	if _, err := values.ParsePath(path, values.DocumentPath); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(path, true)
	if err != nil {
		return Document{}, err
	}
	createTime := commitTime
	if e.doc.Exists {
		createTime = e.doc.CreateTime
	} else if !e.doc.CreateTime.IsZero() && e.doc.CreateTime.After(createTime) {
		// re-creation after delete: identity reborn, create_time >= prior update_time
		createTime = e.doc.CreateTime
	}
	e.doc = Document{
		Path:       path,
		Fields:     fields,
		CreateTime: createTime,
		UpdateTime: commitTime,
		Exists:     true,
	}
	s.ensureAncestorsLinked(path)
	return e.doc, nil
}

// DeleteDocument marks the document absent. Its entry (and any
// subcollection membership) is retained so subcollections remain listable.
func (s *memStore) DeleteDocument(path string, commitTime time.Time) error {
	if _, err := values.ParsePath(path, values.DocumentPath); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(path, false)
	if err != nil {
		return err
	}
	if e == nil || !e.doc.Exists {
		return nil // NoOp
	}
	priorUpdate := e.doc.UpdateTime
	e.doc = Document{Path: path, Exists: false, UpdateTime: priorUpdate, CreateTime: e.doc.CreateTime}
	return nil
}

// ensureAncestorsLinked registers path's collection as a subcollection of
// its parent document entry (creating a placeholder parent entry if
// needed), all the way up the tree.
func (s *memStore) ensureAncestorsLinked(path string) {
	collPath, _, err := values.ParentCollectionPath(path)
	if err != nil || collPath == "" {
		return
	}
	parentDocPath, collID, err := values.ParentDocumentPath(collPath)
	if err != nil {
		return
	}
	if parentDocPath == "" {
		return
	}
	parentEntry, err := s.entry(parentDocPath, true)
	if err != nil || parentEntry == nil {
		return
	}
	parentEntry.subs[collID] = struct{}{}
	s.ensureAncestorsLinked(parentDocPath)
}

func (s *memStore) ListDocuments(parentDoc, collectionID string, showMissing bool) ([]Document, error) {
	if parentDoc != "" {
		if _, err := values.ParsePath(parentDoc, values.DocumentPath); err != nil {
			return nil, err
		}
	}
	collPath := values.JoinPath(parentDoc, collectionID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.collection(collPath, false)
	if coll == nil {
		return nil, nil
	}
	var out []Document
	ids := make([]string, 0, len(coll.docs))
	for id := range coll.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := coll.docs[id]
		if e.doc.Exists {
			out = append(out, e.doc)
		} else if showMissing && len(e.subs) > 0 {
			out = append(out, Document{Path: values.JoinPath(collPath, id), Exists: false})
		}
	}
	return out, nil
}

func (s *memStore) ListCollectionIDs(documentPath string) ([]string, error) {
	if documentPath != "" {
		if _, err := values.ParsePath(documentPath, values.DocumentPath); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if documentPath == "" {
		// root: collection ids are the top-level collections that hold at least one document.
		seen := map[string]struct{}{}
		for collPath, coll := range s.collections {
			if strings.Contains(collPath, "/") || len(coll.docs) == 0 {
				continue
			}
			seen[collPath] = struct{}{}
		}
		return sortedSet(seen), nil
	}

	e, err := s.entry(documentPath, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	seen := map[string]struct{}{}
	for id := range e.subs {
		seen[id] = struct{}{}
	}
	return sortedSet(seen), nil
}

func sortedSet(seen map[string]struct{}) []string {
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ListCollectionGroup matches every collection whose last path segment
// equals collectionID, at any depth, and returns the union of their
// existing documents.
func (s *memStore) ListCollectionGroup(collectionID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for collPath, coll := range s.collections {
		segs := strings.Split(collPath, "/")
		if segs[len(segs)-1] != collectionID {
			continue
		}
		for _, e := range coll.docs {
			if e.doc.Exists {
				out = append(out, e.doc)
			}
		}
	}
	return out, nil
}

func (s *memStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*node)
}
