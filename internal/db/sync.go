package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/index"
)

// Sink periodically mirrors an *index.Index into the side database.
// Every append-only entity kind is tracked per-session by a high-water
// mark (how many of that session's rows the sink has already written),
// the same per-session locality spec §4.3 gives the index itself, so a
// burst of new messages on one session never disturbs the mark for any
// other. Sessions are the one exception: Status mutates in place (spec
// §3 Session lifecycle), so they're re-upserted whenever Status changes
// rather than tracked by count.
type Sink struct {
	db  *DB
	idx *index.Index
	log zerolog.Logger

	messageMark map[string]int
	fileMark    map[string]int
	taskMark    map[string]int
	agentMark   map[string]int
	apiMark     map[string]int
	edgeMark    map[string]int

	sessionStatus map[string]index.SessionStatus
	sessionLeader map[string]string
}

// NewSink creates a Sink over db, mirroring idx.
func NewSink(d *DB, idx *index.Index, log zerolog.Logger) *Sink {
	return &Sink{
		db:            d,
		idx:           idx,
		log:           log.With().Str("component", "db.sink").Logger(),
		messageMark:   make(map[string]int),
		fileMark:      make(map[string]int),
		taskMark:      make(map[string]int),
		agentMark:     make(map[string]int),
		apiMark:       make(map[string]int),
		edgeMark:      make(map[string]int),
		sessionStatus: make(map[string]index.SessionStatus),
		sessionLeader: make(map[string]string),
	}
}

// Run calls Sync on interval until ctx is canceled, logging (but not
// propagating) any error — a slow or failed sync must never stall the
// watcher/parser/bus hot path this is mirroring.
func (s *Sink) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.log.Error().Err(err).Msg("sync failed")
			}
		}
	}
}

// Sync writes every entity the index has appended since the last call,
// and re-upserts any session whose status changed.
func (s *Sink) Sync(ctx context.Context) error {
	sessions := s.idx.ListSessions()

	if err := s.syncSessions(sessions); err != nil {
		return fmt.Errorf("sync sessions: %w", err)
	}
	for _, sess := range sessions {
		if err := s.syncSessionMessages(sess.ID); err != nil {
			return fmt.Errorf("sync messages for %s: %w", sess.ID, err)
		}
		if err := s.syncSessionFiles(sess.ID); err != nil {
			return fmt.Errorf("sync files for %s: %w", sess.ID, err)
		}
		if err := s.syncSessionTasks(sess.ID); err != nil {
			return fmt.Errorf("sync tasks for %s: %w", sess.ID, err)
		}
		if err := s.syncSessionAgents(sess.ID); err != nil {
			return fmt.Errorf("sync agents for %s: %w", sess.ID, err)
		}
		if err := s.syncSessionTopology(sess.ID); err != nil {
			return fmt.Errorf("sync agent topology for %s: %w", sess.ID, err)
		}
		if err := s.syncSessionAPIRequests(sess.ID); err != nil {
			return fmt.Errorf("sync api requests for %s: %w", sess.ID, err)
		}
	}
	return nil
}

func (s *Sink) syncSessions(sessions []index.Session) error {
	now := time.Now().UTC()
	for _, sess := range sessions {
		prev, seen := s.sessionStatus[sess.ID]
		if seen && prev == sess.Status {
			continue
		}
		_, err := s.db.sql.Exec(`INSERT INTO sessions (id, working_dir, status, model, started_at, cost_usd)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				cost_usd = excluded.cost_usd`,
			sess.ID, sess.WorkingDir, string(sess.Status), sess.Model, sess.StartedAt.UTC(), sess.CostUSD)
		if err != nil {
			return err
		}
		if _, err := s.db.sql.Exec(`INSERT INTO session_status_history (session_id, status, recorded_at) VALUES (?, ?, ?)`,
			sess.ID, string(sess.Status), now); err != nil {
			return err
		}
		s.sessionStatus[sess.ID] = sess.Status
	}
	return nil
}

func (s *Sink) syncSessionMessages(sessionID string) error {
	msgs := s.idx.QueryMessagesBySession(sessionID)
	mark := s.messageMark[sessionID]
	if mark >= len(msgs) {
		return nil
	}
	for _, m := range msgs[mark:] {
		_, err := s.db.sql.Exec(`INSERT OR IGNORE INTO messages
			(id, session_id, role, text, raw_content, wall_clock_ns, input_tokens, output_tokens, message_type, agent_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, string(m.Role), m.Text, m.RawContent, m.WallClockNS, m.InputTokens, m.OutputTokens, string(m.MessageType), m.AgentID)
		if err != nil {
			return err
		}
	}
	s.messageMark[sessionID] = len(msgs)
	return nil
}

func (s *Sink) syncSessionFiles(sessionID string) error {
	files := s.idx.QueryFilesBySession(sessionID)
	mark := s.fileMark[sessionID]
	if mark >= len(files) {
		return nil
	}
	for _, f := range files[mark:] {
		if _, err := s.db.sql.Exec(`INSERT OR IGNORE INTO files (id, session_id, path, mtime, size) VALUES (?, ?, ?, ?, ?)`,
			f.ID, f.SessionID, f.Path, f.MTime.UTC(), f.Size); err != nil {
			return err
		}
	}
	s.fileMark[sessionID] = len(files)
	return nil
}

func (s *Sink) syncSessionTasks(sessionID string) error {
	tasks := s.idx.QueryTasksBySession(sessionID)
	mark := s.taskMark[sessionID]
	if mark >= len(tasks) {
		return nil
	}
	for _, t := range tasks[mark:] {
		_, err := s.db.sql.Exec(`INSERT INTO tasks (id, session_id, subject, status, owner) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
			t.ID, t.SessionID, t.Subject, string(t.Status), t.Owner)
		if err != nil {
			return err
		}
	}
	s.taskMark[sessionID] = len(tasks)
	return nil
}

func (s *Sink) syncSessionAgents(sessionID string) error {
	agents := s.idx.QueryAgentsBySession(sessionID)
	mark := s.agentMark[sessionID]
	if mark >= len(agents) {
		return nil
	}
	for _, a := range agents[mark:] {
		if _, err := s.db.sql.Exec(`INSERT OR IGNORE INTO agents (id, session_id, name, type, parent_agent_id) VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.SessionID, a.Name, a.Type, a.ParentAgentID); err != nil {
			return err
		}
	}
	s.agentMark[sessionID] = len(agents)
	return nil
}

// syncSessionTopology maintains the agent relationship graph the teams
// builder in the original implementation kept per team: which agent is
// the leader (the first spawned with no parent), how many messages each
// agent has exchanged, and an edge for every sidechain message recording
// who it passed between. Unlike the other syncSession* methods this
// mutates existing agent rows (message_count, is_leader) rather than
// only appending, since those counts change as new messages arrive for
// an agent spawned earlier in the sync cycle.
func (s *Sink) syncSessionTopology(sessionID string) error {
	agents := s.idx.QueryAgentsBySession(sessionID)
	if len(agents) == 0 {
		return nil
	}

	if _, marked := s.sessionLeader[sessionID]; !marked {
		for _, a := range agents {
			if a.ParentAgentID == "" {
				if _, err := s.db.sql.Exec(`UPDATE agents SET is_leader = 1 WHERE id = ?`, a.ID); err != nil {
					return err
				}
				s.sessionLeader[sessionID] = a.ID
				break
			}
		}
	}
	leader := s.sessionLeader[sessionID]

	messages := s.idx.QueryMessagesBySession(sessionID)
	mark := s.edgeMark[sessionID]
	if mark >= len(messages) {
		return nil
	}
	for _, m := range messages[mark:] {
		if m.AgentID == "" {
			continue
		}
		if _, err := s.db.sql.Exec(`UPDATE agents SET message_count = message_count + 1 WHERE id = ?`, m.AgentID); err != nil {
			return err
		}
		if leader == "" || leader == m.AgentID {
			continue
		}
		if _, err := s.db.sql.Exec(`INSERT INTO agent_message_edges
			(session_id, from_agent_id, to_agent_id, message_type, wall_clock_ns) VALUES (?, ?, ?, ?, ?)`,
			sessionID, leader, m.AgentID, string(m.MessageType), m.WallClockNS); err != nil {
			return err
		}
	}
	s.edgeMark[sessionID] = len(messages)
	return nil
}

func (s *Sink) syncSessionAPIRequests(sessionID string) error {
	reqs := s.idx.QueryAPIRequestsBySession(sessionID)
	mark := s.apiMark[sessionID]
	if mark >= len(reqs) {
		return nil
	}
	for _, r := range reqs[mark:] {
		_, err := s.db.sql.Exec(`INSERT OR IGNORE INTO api_requests
			(id, session_id, method, url, status, latency_ms, redacted_body) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.SessionID, r.Method, r.URL, r.Status, r.LatencyMS, r.RedactedBody)
		if err != nil {
			return err
		}
	}
	s.apiMark[sessionID] = len(reqs)
	return nil
}
