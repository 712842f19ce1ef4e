package discovery

// Family identifies which CLI's transcript layout a SessionFile was
// found under (spec §6).
type Family string

const (
	FamilyClaudeCode         Family = "claude-code"
	FamilyClaudeCodeSubagent Family = "claude-code-subagent"
	FamilyCodex              Family = "codex"
	FamilyGemini             Family = "gemini"
)

// SessionFile is one discovered transcript, ready to hand to
// parser.LoadAll.
type SessionFile struct {
	Path       string
	Family     Family
	SessionID  string
	WorkingDir string // decoded project path; empty when the family has none (Codex, Gemini)

	// ParentSessionID is set only for FamilyClaudeCodeSubagent: the
	// top-level session's UUID, taken from the enclosing
	// projects/<encoded-path>/<uuid>/subagents/ directory.
	ParentSessionID string
}
