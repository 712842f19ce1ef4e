// Package index is the sole custodian of entity state (spec §3, §4.3).
//
// It stores sessions, messages, files, tasks, agents, and API requests in
// slice-backed arenas keyed by a dense handle, with identity and
// session_id secondary indices for constant-time lookups. Every query
// returns a cloned value — the index never lends out a pointer into its
// own storage, so callers can't accidentally mutate entity state behind
// the index's back. Mutation is ordered by the caller; SpawnMessageBatch
// holds the write lock across a whole file-scan batch (spec §4.3).
package index

import "time"

// SessionStatus is one of the four lifecycle states from spec §3.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionIdle     SessionStatus = "idle"
	SessionArchived SessionStatus = "archived"
	SessionError    SessionStatus = "error"
)

// Session is created on discovery of a transcript file and never
// destroyed in-process; only its Status mutates thereafter.
type Session struct {
	ID         string
	WorkingDir string
	Status     SessionStatus
	Model      string
	StartedAt  time.Time
	CostUSD    float64
}

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageType is derived by the parser from the first non-text content
// block present, in preference order Thinking > ToolUse > ToolResult >
// Text (spec §4.2).
type MessageType string

const (
	MessageText           MessageType = "text"
	MessageToolUse        MessageType = "tool_use"
	MessageToolResult     MessageType = "tool_result"
	MessageThinking       MessageType = "thinking"
	MessageSystemReminder MessageType = "system_reminder"
	MessageError          MessageType = "error"
)

// Message is immutable once inserted. RawContent preserves the original
// structured content verbatim (as JSON) for lossless round-tripping to
// the frontend, per spec §4.2 and the "Dynamic content shapes" design
// note in §9.
type Message struct {
	ID          string
	SessionID   string
	Role        Role
	Text        string
	RawContent  []byte // opaque JSON, preserved verbatim
	WallClockNS int64
	InputTokens int
	OutputTokens int
	MessageType MessageType
	// AgentID is set when this message is a sidechain (GLOSSARY):
	// emitted by a subordinate agent rather than the top-level
	// assistant.
	AgentID string
}

// File is an append-only record of a file touched within a session.
type File struct {
	ID        string
	SessionID string
	Path      string
	MTime     time.Time
	Size      int64
}

// TaskStatus mirrors the lightweight task-tracking surface surfaced to
// the frontend (pending/in_progress/completed, matching what the
// assistants themselves report).
type TaskStatus string

// Task is an append-only record of a task the assistant is tracking.
type Task struct {
	ID        string
	SessionID string
	Subject   string
	Status    TaskStatus
	Owner     string
}

// Agent is an append-only record of a (sub)agent spawned within a
// session. ParentAgentID is resolved by identifier, not by reference
// (spec §9 "Cyclic relationships"); it may be empty (top-level) or
// point at another Agent, including itself or a cycle — callers that
// walk the parent chain must track visited IDs or cap depth.
type Agent struct {
	ID            string
	SessionID     string
	Name          string
	Type          string
	ParentAgentID string
}

// APIRequest is an append-only record of an outbound API call made on
// behalf of a session (method/url/status/latency), with bodies already
// redacted upstream by the time they reach the index.
type APIRequest struct {
	ID            string
	SessionID     string
	Method        string
	URL           string
	Status        int
	LatencyMS     int64
	RedactedBody  []byte
}
