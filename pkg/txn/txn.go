/*
Package txn implements the transaction manager: allocating transaction
tokens, tracking the paths each transaction reads, and committing or rolling
back read-only and read-write transactions with doc-level optimistic
conflict detection.

Tokens are opaque, held in an expiry-free map guarded by a mutex, and
transition through a small state machine (Active/Committed/RolledBack/
Aborted) — the same generate-token/guard-with-mutex/transition-state
shape this codebase uses for other short-lived handles.
*/
package txn

import (
	"sync"
	"time"

	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/google/uuid"
)

// Kind distinguishes read-only from read-write transactions.
type Kind int

const (
	ReadOnly Kind = iota
	ReadWrite
)

// State is a transaction's lifecycle state.
type State int

const (
	Active State = iota
	Committed
	RolledBack
	Aborted
)

// Token is an opaque transaction handle.
type Token string

// record is the transaction manager's internal bookkeeping for one token.
type record struct {
	kind     Kind
	state    State
	readTime time.Time
	reads    map[string]time.Time // path -> update_time observed at read
	writes   []interface{}        // buffered writes.Write, typed as interface{} to avoid an import cycle; see engine for the concrete type
}

// IDGen mints transaction tokens. Injected so tests can supply
// deterministic IDs instead of depending on global randomness.
type IDGen interface {
	NewToken() string
}

type uuidGen struct{}

func (uuidGen) NewToken() string { return uuid.NewString() }

// DefaultIDGen is the production IDGen, backed by github.com/google/uuid.
var DefaultIDGen IDGen = uuidGen{}

// Manager tracks every transaction's lifecycle.
type Manager struct {
	mu     sync.Mutex
	idGen  IDGen
	tokens map[Token]*record
}

func NewManager(idGen IDGen) *Manager {
	if idGen == nil {
		idGen = DefaultIDGen
	}
	return &Manager{idGen: idGen, tokens: make(map[Token]*record)}
}

// Begin allocates a fresh token for the given kind, recording now as the
// transaction's read time for both kinds. The read time stays fixed at
// now: it is not moved to the time of the first read, and RecordRead does
// not change it.
func (m *Manager) Begin(kind Kind, now time.Time) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok := Token(m.idGen.NewToken())
	m.tokens[tok] = &record{kind: kind, state: Active, readTime: now, reads: make(map[string]time.Time)}
	return tok
}

func (m *Manager) lookup(tok Token) (*record, error) {
	r, ok := m.tokens[tok]
	if !ok {
		return nil, values.InvalidArgument("transaction", "unknown transaction token")
	}
	return r, nil
}

// ReadTime returns the snapshot time a transaction's reads are served at.
func (m *Manager) ReadTime(tok Token) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(tok)
	if err != nil {
		return time.Time{}, err
	}
	if r.state != Active {
		return time.Time{}, values.InvalidArgument("transaction", "transaction is not active")
	}
	return r.readTime, nil
}

// RecordRead notes that tok observed doc's current update_time (Zero if
// absent) for a path it read, used later to detect read-write conflicts.
func (m *Manager) RecordRead(tok Token, path string, updateTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(tok)
	if err != nil {
		return err
	}
	if r.state != Active {
		return values.InvalidArgument("transaction", "transaction is not active")
	}
	r.reads[path] = updateTime
	return nil
}

// Kind reports whether tok is a read-only or read-write transaction.
func (m *Manager) Kind(tok Token) (Kind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(tok)
	if err != nil {
		return 0, err
	}
	return r.kind, nil
}

// PrepareCommit validates that tok may commit (Active, and read-write if
// writes is non-empty), then checks the doc-level optimistic read-set
// against st's current state. On success it transitions tok to Committed
// and returns nil. Callers run it before applying the transaction's own
// writes, so those writes cannot show up as a conflict on paths the
// transaction both read and wrote.
func (m *Manager) PrepareCommit(tok Token, st store.Store, hasWrites bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(tok)
	if err != nil {
		return err
	}
	switch r.state {
	case Committed, RolledBack:
		return values.InvalidArgument("transaction", "transaction is already %s", stateName(r.state))
	case Aborted:
		return values.Aborted("transaction was already aborted")
	}
	if r.kind == ReadOnly && hasWrites {
		return values.InvalidArgument("transaction", "read-only transaction may not commit writes")
	}

	for path, seenUpdate := range r.reads {
		doc, err := st.GetDocument(path)
		if err != nil {
			return err
		}
		curUpdate := doc.UpdateTime
		if !curUpdate.Equal(seenUpdate) {
			r.state = Aborted
			return values.Aborted("read-write transaction lost a race on %q", path)
		}
	}

	r.state = Committed
	return nil
}

// Rollback transitions an Active token to RolledBack. A second rollback of
// the same token yields Aborted; rolling back an already-committed token
// is InvalidArgument.
func (m *Manager) Rollback(tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(tok)
	if err != nil {
		return err
	}
	switch r.state {
	case Active:
		r.state = RolledBack
		return nil
	case RolledBack:
		r.state = Aborted
		return values.Aborted("transaction was already rolled back")
	case Committed:
		return values.InvalidArgument("transaction", "transaction is already committed")
	default: // Aborted
		return values.Aborted("transaction was already aborted")
	}
}

// State returns tok's current lifecycle state.
func (m *Manager) State(tok Token) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(tok)
	if err != nil {
		return 0, err
	}
	return r.state, nil
}

func stateName(s State) string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}
