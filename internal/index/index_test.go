package index

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(idx *Index) Session {
	s := Session{
		ID:         uuid.NewString(),
		WorkingDir: "/tmp/project",
		Status:     SessionActive,
		Model:      "claude",
		StartedAt:  time.Now(),
	}
	idx.SpawnSession(s)
	return s
}

// TestIndex_SpawnMessage_UnknownSession covers spec §3 invariant 1:
// session_id must refer to a live session already present in the index.
func TestIndex_SpawnMessage_UnknownSession(t *testing.T) {
	idx := New()
	err := idx.SpawnMessage(Message{ID: uuid.NewString(), SessionID: "does-not-exist"})
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 0, idx.CountAll().Messages)
}

// TestIndex_RoundTrip covers spec §8's "Index round-trip" law: what goes
// in via spawn comes back unchanged via query, and arrival order is
// preserved for per-session listings.
func TestIndex_RoundTrip(t *testing.T) {
	idx := New()
	s := newTestSession(idx)

	m1 := Message{ID: uuid.NewString(), SessionID: s.ID, Role: RoleUser, Text: "hello", MessageType: MessageText}
	m2 := Message{ID: uuid.NewString(), SessionID: s.ID, Role: RoleAssistant, Text: "hi", MessageType: MessageText}
	require.NoError(t, idx.SpawnMessage(m1))
	require.NoError(t, idx.SpawnMessage(m2))

	got, ok := idx.QueryMessageByID(m1.ID)
	require.True(t, ok)
	assert.Equal(t, m1, got)

	bySession := idx.QueryMessagesBySession(s.ID)
	require.Len(t, bySession, 2)
	assert.Equal(t, m1.ID, bySession[0].ID)
	assert.Equal(t, m2.ID, bySession[1].ID)

	gotSession, ok := idx.QuerySessionByID(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, gotSession)
}

func TestIndex_SpawnMessageBatch_StopsAtUnknownSession(t *testing.T) {
	idx := New()
	s := newTestSession(idx)

	msgs := []Message{
		{ID: uuid.NewString(), SessionID: s.ID},
		{ID: uuid.NewString(), SessionID: s.ID},
		{ID: uuid.NewString(), SessionID: "ghost"},
		{ID: uuid.NewString(), SessionID: s.ID},
	}
	inserted, err := idx.SpawnMessageBatch(msgs)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 2, inserted)
	assert.Len(t, idx.QueryMessagesBySession(s.ID), 2)
}

func TestIndex_UpdateSessionStatus(t *testing.T) {
	idx := New()
	s := newTestSession(idx)

	ok := idx.UpdateSessionStatus(s.ID, SessionIdle)
	assert.True(t, ok)

	got, found := idx.QuerySessionByID(s.ID)
	require.True(t, found)
	assert.Equal(t, SessionIdle, got.Status)

	assert.False(t, idx.UpdateSessionStatus("ghost", SessionArchived))
}

func TestIndex_CountAll(t *testing.T) {
	idx := New()
	s := newTestSession(idx)
	require.NoError(t, idx.SpawnFile(File{ID: uuid.NewString(), SessionID: s.ID, Path: "main.go"}))
	require.NoError(t, idx.SpawnTask(Task{ID: uuid.NewString(), SessionID: s.ID, Subject: "write tests"}))
	require.NoError(t, idx.SpawnAgent(Agent{ID: uuid.NewString(), SessionID: s.ID, Name: "root"}))
	require.NoError(t, idx.SpawnAPIRequest(APIRequest{ID: uuid.NewString(), SessionID: s.ID, Method: "POST"}))

	counts := idx.CountAll()
	assert.Equal(t, 1, counts.Sessions)
	assert.Equal(t, 1, counts.Files)
	assert.Equal(t, 1, counts.Tasks)
	assert.Equal(t, 1, counts.Agents)
	assert.Equal(t, 1, counts.APIRequests)
}

// TestIndex_ResolveAgentChain_ToleratesCycles covers spec §9's cyclic
// agent parentage note: a self-referencing chain must terminate rather
// than loop forever.
func TestIndex_ResolveAgentChain_ToleratesCycles(t *testing.T) {
	idx := New()
	s := newTestSession(idx)

	a1 := Agent{ID: "a1", SessionID: s.ID, Name: "one", ParentAgentID: "a2"}
	a2 := Agent{ID: "a2", SessionID: s.ID, Name: "two", ParentAgentID: "a1"} // cycle
	require.NoError(t, idx.SpawnAgent(a1))
	require.NoError(t, idx.SpawnAgent(a2))

	chain := idx.ResolveAgentChain("a1", 10)
	assert.Len(t, chain, 2)
	assert.Equal(t, "a1", chain[0].ID)
	assert.Equal(t, "a2", chain[1].ID)
}

func TestIndex_ResolveAgentChain_DanglingParent(t *testing.T) {
	idx := New()
	s := newTestSession(idx)
	require.NoError(t, idx.SpawnAgent(Agent{ID: "orphan", SessionID: s.ID, ParentAgentID: "nowhere"}))

	chain := idx.ResolveAgentChain("orphan", 10)
	assert.Len(t, chain, 1)
}

// TestIndex_QueriesReturnClones ensures mutating a returned value does
// not affect the index's internal state.
func TestIndex_QueriesReturnClones(t *testing.T) {
	idx := New()
	s := newTestSession(idx)

	got, _ := idx.QuerySessionByID(s.ID)
	got.Status = SessionError
	got.WorkingDir = "mutated"

	reread, _ := idx.QuerySessionByID(s.ID)
	assert.Equal(t, SessionActive, reread.Status)
	assert.Equal(t, "/tmp/project", reread.WorkingDir)
}
