package index

import (
	"fmt"
	"sync"
)

// ErrUnknownSession is returned by spawn operations when session_id does
// not refer to a live session already present in the index, per spec §3
// invariant 1.
var ErrUnknownSession = fmt.Errorf("index: unknown session_id")

// Index is the custodian of entity state described in spec §4.3. All
// queries return cloned values; the index never lends out a handle or
// pointer into its own storage.
type Index struct {
	mu sync.RWMutex

	sessions *arena[Session]
	messages *arena[Message]
	files    *arena[File]
	tasks    *arena[Task]
	agents   *arena[Agent]
	apiCalls *arena[APIRequest]
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		sessions: newArena(func(s Session) string { return s.ID }, func(Session) string { return "" }),
		messages: newArena(func(m Message) string { return m.ID }, func(m Message) string { return m.SessionID }),
		files:    newArena(func(f File) string { return f.ID }, func(f File) string { return f.SessionID }),
		tasks:    newArena(func(t Task) string { return t.ID }, func(t Task) string { return t.SessionID }),
		agents:   newArena(func(a Agent) string { return a.ID }, func(a Agent) string { return a.SessionID }),
		apiCalls: newArena(func(r APIRequest) string { return r.ID }, func(r APIRequest) string { return r.SessionID }),
	}
}

func (idx *Index) sessionExists(id string) bool {
	_, ok := idx.sessions.byIdentity(id)
	return ok
}

// SpawnSession registers a new session. Sessions are never destroyed in
// process; re-spawning an existing ID is a no-op append that would
// shadow the prior record, so callers should check existence first via
// QuerySessionByID when discovery may race.
func (idx *Index) SpawnSession(s Session) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.sessions.append(s)
}

// SpawnMessage inserts a message. Returns ErrUnknownSession if
// m.SessionID does not refer to a live session (spec §3 invariant 1).
func (idx *Index) SpawnMessage(m Message) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.sessionExists(m.SessionID) {
		return ErrUnknownSession
	}
	idx.messages.append(m)
	return nil
}

// SpawnMessageBatch inserts many messages under a single write-lock
// hold, as spec §4.3 "Concurrency" calls for: "writers coalesce bursts
// from the parser by holding the write lock across a batch of
// spawn_message calls issued from one file-scan." The batch stops (but
// keeps what it already inserted) at the first unknown session_id.
func (idx *Index) SpawnMessageBatch(msgs []Message) (inserted int, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, m := range msgs {
		if !idx.sessionExists(m.SessionID) {
			return inserted, ErrUnknownSession
		}
		idx.messages.append(m)
		inserted++
	}
	return inserted, nil
}

// SpawnFile inserts a file record.
func (idx *Index) SpawnFile(f File) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.sessionExists(f.SessionID) {
		return ErrUnknownSession
	}
	idx.files.append(f)
	return nil
}

// SpawnTask inserts a task record.
func (idx *Index) SpawnTask(t Task) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.sessionExists(t.SessionID) {
		return ErrUnknownSession
	}
	idx.tasks.append(t)
	return nil
}

// SpawnAgent inserts an agent record. ParentAgentID is not validated
// against the agent arena: cycles and dangling references are tolerated
// per spec §9, resolved lazily by traversal code.
func (idx *Index) SpawnAgent(a Agent) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.sessionExists(a.SessionID) {
		return ErrUnknownSession
	}
	idx.agents.append(a)
	return nil
}

// SpawnAPIRequest inserts an API request record.
func (idx *Index) SpawnAPIRequest(r APIRequest) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.sessionExists(r.SessionID) {
		return ErrUnknownSession
	}
	idx.apiCalls.append(r)
	return nil
}

// UpdateSessionStatus mutates a session's Status in place (the only
// mutation the index supports, per spec §3 Session lifecycle).
func (idx *Index) UpdateSessionStatus(id string, status SessionStatus) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.sessions.update(id, func(s Session) Session {
		s.Status = status
		return s
	})
}

// QuerySessionByID returns a clone of the session, if present.
func (idx *Index) QuerySessionByID(id string) (Session, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.sessions.byIdentity(id)
}

// QueryMessageByID returns a clone of the message, if present.
func (idx *Index) QueryMessageByID(id string) (Message, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.messages.byIdentity(id)
}

// QueryMessagesBySession returns every message for sessionID, in
// arrival order.
func (idx *Index) QueryMessagesBySession(sessionID string) []Message {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.messages.bySessionID(sessionID)
}

// QueryFilesBySession returns every file record for sessionID.
func (idx *Index) QueryFilesBySession(sessionID string) []File {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.files.bySessionID(sessionID)
}

// QueryTasksBySession returns every task record for sessionID.
func (idx *Index) QueryTasksBySession(sessionID string) []Task {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tasks.bySessionID(sessionID)
}

// QueryAgentsBySession returns every agent record for sessionID.
func (idx *Index) QueryAgentsBySession(sessionID string) []Agent {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.agents.bySessionID(sessionID)
}

// QueryAgentByID returns a clone of the agent, if present.
func (idx *Index) QueryAgentByID(id string) (Agent, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.agents.byIdentity(id)
}

// QueryAPIRequestsBySession returns every API request record for sessionID.
func (idx *Index) QueryAPIRequestsBySession(sessionID string) []APIRequest {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.apiCalls.bySessionID(sessionID)
}

// ListSessions returns every session, in arrival order.
func (idx *Index) ListSessions() []Session {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.sessions.all()
}

// Counts is a snapshot of entity counts, used by the side database
// (internal/db) and by cold-start discovery assertions in tests.
type Counts struct {
	Sessions    int
	Messages    int
	Files       int
	Tasks       int
	Agents      int
	APIRequests int
}

// CountAll returns a consistent snapshot of every entity count.
func (idx *Index) CountAll() Counts {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Counts{
		Sessions:    idx.sessions.count(),
		Messages:    idx.messages.count(),
		Files:       idx.files.count(),
		Tasks:       idx.tasks.count(),
		Agents:      idx.agents.count(),
		APIRequests: idx.apiCalls.count(),
	}
}

// ResolveAgentChain walks an agent's ParentAgentID links up to maxDepth
// hops, returning the chain from the given agent up to its top-level
// ancestor (or until a cycle or dangling reference is hit). Grounded on
// spec §9's note that cyclic agent parentage "must be tolerated by
// traversal code (limit depth or track visited set)."
func (idx *Index) ResolveAgentChain(agentID string, maxDepth int) []Agent {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	visited := make(map[string]struct{})
	var chain []Agent
	id := agentID
	for depth := 0; depth < maxDepth && id != ""; depth++ {
		if _, seen := visited[id]; seen {
			break
		}
		visited[id] = struct{}{}
		a, ok := idx.agents.byIdentity(id)
		if !ok {
			break
		}
		chain = append(chain, a)
		id = a.ParentAgentID
	}
	return chain
}
