package db

import (
	"fmt"
	"time"
)

// SessionSnapshot is a session's row as last synced, plus its status as
// of a point in time.
type SessionSnapshot struct {
	ID         string
	WorkingDir string
	Status     string
	Model      string
	StartedAt  time.Time
	CostUSD    float64
}

// SessionsAsOf returns every session whose started_at is at or before
// asOf, with Status set to whatever session_status_history last
// recorded for it at or before asOf (falling back to the session's
// current Status if the history table — seeded at the sink's first
// sync — has no row for it at or before asOf).
func (d *DB) SessionsAsOf(asOf time.Time) ([]SessionSnapshot, error) {
	rows, err := d.sql.Query(`
		SELECT s.id, s.working_dir, s.model, s.started_at, s.cost_usd,
			COALESCE((
				SELECT h.status FROM session_status_history h
				WHERE h.session_id = s.id AND h.recorded_at <= ?
				ORDER BY h.recorded_at DESC LIMIT 1
			), s.status)
		FROM sessions s
		WHERE s.started_at <= ?
		ORDER BY s.started_at`, asOf.UTC(), asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("db: sessions as of: %w", err)
	}
	defer rows.Close()

	var out []SessionSnapshot
	for rows.Next() {
		var s SessionSnapshot
		if err := rows.Scan(&s.ID, &s.WorkingDir, &s.Model, &s.StartedAt, &s.CostUSD, &s.Status); err != nil {
			return nil, fmt.Errorf("db: scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MessageSnapshot is a message row as synced.
type MessageSnapshot struct {
	ID          string
	SessionID   string
	Role        string
	Text        string
	WallClockNS int64
	MessageType string
	AgentID     string
}

// MessagesAsOf returns sessionID's messages whose WallClockNS is at or
// before asOf, ordered by WallClockNS — a point-in-time replay of the
// transcript as the frontend would have seen it at that moment (spec §1
// "a side database exists for point-in-time queries").
func (d *DB) MessagesAsOf(sessionID string, asOf time.Time) ([]MessageSnapshot, error) {
	rows, err := d.sql.Query(`SELECT id, session_id, role, text, wall_clock_ns, message_type, agent_id
		FROM messages WHERE session_id = ? AND wall_clock_ns <= ? ORDER BY wall_clock_ns`,
		sessionID, asOf.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("db: messages as of: %w", err)
	}
	defer rows.Close()

	var out []MessageSnapshot
	for rows.Next() {
		var m MessageSnapshot
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Text, &m.WallClockNS, &m.MessageType, &m.AgentID); err != nil {
			return nil, fmt.Errorf("db: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AgentSnapshot is an agent row as synced, enriched with the topology
// fields syncSessionTopology maintains: whether it's the session's
// leader agent and how many messages it has exchanged so far.
type AgentSnapshot struct {
	ID            string
	SessionID     string
	Name          string
	Type          string
	ParentAgentID string
	IsLeader      bool
	MessageCount  int
}

// AgentMessageEdge is one recorded exchange between the session's leader
// agent and a subordinate, mirroring the original implementation's
// team topology edges (from/to/message type/timestamp).
type AgentMessageEdge struct {
	SessionID   string
	FromAgentID string
	ToAgentID   string
	MessageType string
	WallClockNS int64
}

// AgentTopologyForSession returns every agent spawned within sessionID
// plus the edges recorded between the leader and its subordinates, the
// durable counterpart of the team/agent graph spec §3's Agent entity and
// §9's cyclic-relationships note describe.
func (d *DB) AgentTopologyForSession(sessionID string) ([]AgentSnapshot, []AgentMessageEdge, error) {
	rows, err := d.sql.Query(`SELECT id, session_id, name, type, parent_agent_id, is_leader, message_count
		FROM agents WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("db: agent topology nodes: %w", err)
	}
	var nodes []AgentSnapshot
	for rows.Next() {
		var a AgentSnapshot
		var isLeader int
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Name, &a.Type, &a.ParentAgentID, &isLeader, &a.MessageCount); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("db: scan agent: %w", err)
		}
		a.IsLeader = isLeader != 0
		nodes = append(nodes, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	edgeRows, err := d.sql.Query(`SELECT session_id, from_agent_id, to_agent_id, message_type, wall_clock_ns
		FROM agent_message_edges WHERE session_id = ? ORDER BY wall_clock_ns`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("db: agent topology edges: %w", err)
	}
	defer edgeRows.Close()
	var edges []AgentMessageEdge
	for edgeRows.Next() {
		var e AgentMessageEdge
		if err := edgeRows.Scan(&e.SessionID, &e.FromAgentID, &e.ToAgentID, &e.MessageType, &e.WallClockNS); err != nil {
			return nil, nil, fmt.Errorf("db: scan agent edge: %w", err)
		}
		edges = append(edges, e)
	}
	return nodes, edges, edgeRows.Err()
}

// Counts mirrors index.Counts, but as last durably synced rather than
// as of the current in-memory state.
type Counts struct {
	Sessions    int
	Messages    int
	Files       int
	Tasks       int
	Agents      int
	APIRequests int
}

// CountAll returns the row counts of every mirrored table.
func (d *DB) CountAll() (Counts, error) {
	var c Counts
	for table, dst := range map[string]*int{
		"sessions":     &c.Sessions,
		"messages":     &c.Messages,
		"files":        &c.Files,
		"tasks":        &c.Tasks,
		"agents":       &c.Agents,
		"api_requests": &c.APIRequests,
	} {
		if err := d.sql.QueryRow("SELECT COUNT(*) FROM " + table).Scan(dst); err != nil {
			return Counts{}, fmt.Errorf("db: count %s: %w", table, err)
		}
	}
	return c, nil
}
