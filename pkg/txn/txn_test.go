package txn

import (
	"testing"
	"time"

	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
	"github.com/stretchr/testify/require"
)

type seqGen struct{ n int }

func (g *seqGen) NewToken() string {
	g.n++
	return string(rune('a' - 1 + g.n))
}

func TestBeginAssignsDistinctTokens(t *testing.T) {
	m := NewManager(&seqGen{})
	t1 := m.Begin(ReadWrite, time.Now())
	t2 := m.Begin(ReadWrite, time.Now())
	require.NotEqual(t, t1, t2)
}

func TestReadOnlyCannotCommitWrites(t *testing.T) {
	m := NewManager(&seqGen{})
	st := store.New()
	tok := m.Begin(ReadOnly, time.Now())
	err := m.PrepareCommit(tok, st, true)
	require.Error(t, err)
	require.Equal(t, values.CodeInvalidArgument, values.CodeOf(err))
}

func TestCommitDetectsConflict(t *testing.T) {
	m := NewManager(&seqGen{})
	st := store.New()
	now := time.Now()
	doc, err := st.SetDocument("users/alice", values.Map(nil), now)
	require.NoError(t, err)

	tok := m.Begin(ReadWrite, now)
	require.NoError(t, m.RecordRead(tok, "users/alice", doc.UpdateTime))

	// Concurrent write bumps update_time before this transaction commits.
	_, err = st.SetDocument("users/alice", values.Map(nil), now.Add(time.Second))
	require.NoError(t, err)

	err = m.PrepareCommit(tok, st, false)
	require.Error(t, err)
	require.Equal(t, values.CodeAborted, values.CodeOf(err))

	state, err := m.State(tok)
	require.NoError(t, err)
	require.Equal(t, Aborted, state)
}

func TestCommitSucceedsWithoutConflict(t *testing.T) {
	m := NewManager(&seqGen{})
	st := store.New()
	now := time.Now()
	doc, err := st.SetDocument("users/alice", values.Map(nil), now)
	require.NoError(t, err)

	tok := m.Begin(ReadWrite, now)
	require.NoError(t, m.RecordRead(tok, "users/alice", doc.UpdateTime))
	require.NoError(t, m.PrepareCommit(tok, st, true))

	state, err := m.State(tok)
	require.NoError(t, err)
	require.Equal(t, Committed, state)
}

func TestRollbackThenRollbackAborts(t *testing.T) {
	m := NewManager(&seqGen{})
	tok := m.Begin(ReadWrite, time.Now())
	require.NoError(t, m.Rollback(tok))
	err := m.Rollback(tok)
	require.Error(t, err)
	require.Equal(t, values.CodeAborted, values.CodeOf(err))
}

func TestCommitAfterRollbackFails(t *testing.T) {
	m := NewManager(&seqGen{})
	st := store.New()
	tok := m.Begin(ReadWrite, time.Now())
	require.NoError(t, m.Rollback(tok))
	err := m.PrepareCommit(tok, st, false)
	require.Error(t, err)
}

func TestUnknownTokenIsInvalidArgument(t *testing.T) {
	m := NewManager(&seqGen{})
	_, err := m.ReadTime(Token("nope"))
	require.Error(t, err)
	require.Equal(t, values.CodeInvalidArgument, values.CodeOf(err))
}
