// Package parser converts append-only line-delimited JSON transcript
// files into typed conversation messages without re-reading history
// (spec §4.2). It dispatches on each line's "type" field, normalizes
// whatever shape it finds into a single Message, and keeps a byte-offset
// map so incremental tailing never rescans bytes it has already parsed.
package parser

import "encoding/json"

// LineType is the discriminant of a raw transcript line.
type LineType string

const (
	LineUser               LineType = "user"
	LineAssistant          LineType = "assistant"
	LineSystem             LineType = "system"
	LineProgress           LineType = "progress"
	LineSummary            LineType = "summary"
	LineFileHistorySnapshot LineType = "file-history-snapshot"
	LineUnknown            LineType = "unknown"
)

// Role mirrors index.Role without importing internal/index, so parser
// has no dependency on the entity store it feeds.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageType is derived from the first non-text content block present,
// preference order Thinking > ToolUse > ToolResult > Text (spec §4.2).
type MessageType string

const (
	MessageText           MessageType = "text"
	MessageToolUse        MessageType = "tool_use"
	MessageToolResult     MessageType = "tool_result"
	MessageThinking       MessageType = "thinking"
	MessageSystemReminder MessageType = "system_reminder"
	MessageError          MessageType = "error"
)

// ContentBlock is the closed variant set spec §9 fixes for in-memory
// storage: Text, ToolUse, ToolResult, Thinking, Image, plus an "unknown"
// fall-through for forward-compatible source schemas.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Source    string          `json:"source,omitempty"` // image data URI or similar
}

// Message is the normalized output of the parser, mirroring
// internal/index.Message field-for-field so the caller can convert with
// a flat struct literal.
type Message struct {
	SessionID    string
	Role         Role
	Text         string
	RawContent   []byte // opaque JSON, verbatim, for lossless round-trip
	WallClockNS  int64
	InputTokens  int
	OutputTokens int
	MessageType  MessageType
	AgentID      string
	// StopReason is the inner message's stop_reason verbatim (e.g.
	// "end_turn"), empty when the line carries none. Drives supervisor
	// state transitions in observed mode (spec §4.6).
	StopReason string
}

// rawLine is the loose decode every transcript line goes through before
// type-specific dispatch.
type rawLine struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Subtype   string          `json:"subtype,omitempty"`
}

// innerMessage is the nested {role, content, usage} shape Claude Code
// and compatible CLIs nest inside user/assistant lines.
type innerMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Usage      *usage          `json:"usage,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
