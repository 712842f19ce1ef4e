package app

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/bus"
	"github.com/noaide-sh/noaide/internal/discovery"
	"github.com/noaide-sh/noaide/internal/index"
	"github.com/noaide-sh/noaide/internal/parser"
)

// ingester is the glue the teacher has no equivalent of: it drives
// internal/discovery + internal/parser to populate internal/index and
// mirrors every new message onto the bus, which is the "data flow" spec
// §3 describes end to end ("the supervisor subscribes to [watcher]
// events ... and delegates transcript ingestion to the parser, which
// ... produces a batch of typed messages per event. Messages land in
// the index and are published, wrapped in an envelope, on the bus").
type ingester struct {
	idx     *index.Index
	bus     bus.Bus
	log     zerolog.Logger
	offsets *parser.OffsetTracker

	mu          sync.Mutex
	pathSession map[string]string // transcript path -> owning session ID
	pathAgent   map[string]string // transcript path -> agent ID, subagent files only
}

func newIngester(idx *index.Index, b bus.Bus, log zerolog.Logger) *ingester {
	return &ingester{
		idx:         idx,
		bus:         b,
		log:         log.With().Str("component", "ingest").Logger(),
		offsets:     parser.NewOffsetTracker(),
		pathSession: make(map[string]string),
		pathAgent:   make(map[string]string),
	}
}

// LoadAll discovers every transcript under roots and loads its current
// contents into the index (spec §8 scenario 1, cold-start discovery).
func (ig *ingester) LoadAll(ctx context.Context, roots []string) error {
	files, err := discovery.Scan(roots)
	if err != nil {
		return err
	}
	ig.registerAll(files)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	results, err := parser.LoadAll(ctx, paths, func(path string, lineNo int, reason string) {
		ig.log.Warn().Str("path", path).Int("line", lineNo).Str("reason", reason).Msg("skipped malformed transcript line")
	})
	if err != nil {
		return err
	}

	for _, res := range results {
		if res.Err != nil {
			ig.log.Warn().Err(res.Err).Str("path", res.Path).Msg("failed to parse transcript")
			continue
		}
		ig.ingestMessages(ctx, res.Path, res.Messages, true)

		// Prime the offset tracker with the file's current size so a
		// later watch event tails only what's appended after this load,
		// not the content LoadAll already consumed.
		if info, statErr := os.Stat(res.Path); statErr == nil {
			ig.offsets.Set(res.Path, info.Size())
		}
	}
	return nil
}

// registerAll creates any not-yet-known session/agent from files, in
// two passes so a subagent's parent session always exists first (spec
// §3 invariant 1: spawning anything against an unknown session_id
// fails).
func (ig *ingester) registerAll(files []discovery.SessionFile) {
	ig.mu.Lock()
	defer ig.mu.Unlock()

	for _, f := range files {
		if f.Family == discovery.FamilyClaudeCodeSubagent {
			continue
		}
		ig.pathSession[f.Path] = f.SessionID
		if _, ok := ig.idx.QuerySessionByID(f.SessionID); !ok {
			ig.idx.SpawnSession(index.Session{
				ID:         f.SessionID,
				WorkingDir: f.WorkingDir,
				Status:     index.SessionActive,
				StartedAt:  time.Now(),
			})
		}
	}

	for _, f := range files {
		if f.Family != discovery.FamilyClaudeCodeSubagent {
			continue
		}
		ig.pathSession[f.Path] = f.ParentSessionID
		ig.pathAgent[f.Path] = f.SessionID
		if _, ok := ig.idx.QueryAgentByID(f.SessionID); !ok {
			name := f.SessionID
			if i := strings.LastIndex(name, "/agent-"); i >= 0 {
				name = name[i+len("/agent-"):]
			}
			if err := ig.idx.SpawnAgent(index.Agent{
				ID:        f.SessionID,
				SessionID: f.ParentSessionID,
				Name:      name,
				Type:      "subagent",
			}); err != nil {
				ig.log.Warn().Err(err).Str("session_id", f.ParentSessionID).Msg("dropping subagent record for unknown parent session")
			}
		}
	}
}

// ingestMessages converts parsed transcript lines into index messages,
// publishes each on session/messages, and — for an initial load only —
// publishes one session_loaded envelope summarizing the batch.
func (ig *ingester) ingestMessages(ctx context.Context, path string, msgs []parser.Message, initialLoad bool) {
	ig.mu.Lock()
	sessionID := ig.pathSession[path]
	agentID := ig.pathAgent[path]
	ig.mu.Unlock()
	if sessionID == "" {
		return
	}

	ims := make([]index.Message, 0, len(msgs))
	for _, m := range msgs {
		ims = append(ims, index.Message{
			ID:           uuid.NewString(),
			SessionID:    sessionID,
			Role:         index.Role(m.Role),
			Text:         m.Text,
			RawContent:   m.RawContent,
			WallClockNS:  m.WallClockNS,
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
			MessageType:  index.MessageType(m.MessageType),
			AgentID:      agentID,
		})
	}
	// One write-lock hold for the whole file-scan batch.
	spawned, err := ig.idx.SpawnMessageBatch(ims)
	if err != nil {
		ig.log.Warn().Err(err).Str("session_id", sessionID).Int("dropped", len(ims)-spawned).Msg("dropping messages for unknown session")
	}
	for _, im := range ims[:spawned] {
		publishEnvelope(ctx, ig.bus, bus.TopicSessionMessages, bus.SourceJsonl, sessionID, messagePayload{
			Type:        "message",
			MessageID:   im.ID,
			SessionID:   sessionID,
			Role:        string(im.Role),
			Text:        im.Text,
			MessageType: string(im.MessageType),
			AgentID:     agentID,
		})
	}

	if initialLoad && spawned > 0 {
		publishEnvelope(ctx, ig.bus, bus.TopicSessionMessages, bus.SourceJsonl, sessionID, sessionLoadedPayload{
			Type:         "session_loaded",
			SessionID:    sessionID,
			MessageCount: spawned,
		})
	}
}

type messagePayload struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	SessionID   string `json:"session_id"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	MessageType string `json:"message_type"`
	AgentID     string `json:"agent_id,omitempty"`
}

type sessionLoadedPayload struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
}
