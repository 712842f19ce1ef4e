package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noaide-sh/noaide/internal/bus"
	"github.com/noaide-sh/noaide/internal/discovery"
	"github.com/noaide-sh/noaide/internal/index"
	"github.com/noaide-sh/noaide/internal/watcher"
)

func writeTranscript(t *testing.T, path string, sessionID string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var content string
	for i := 0; i < n; i++ {
		content += `{"type":"user","sessionId":"` + sessionID + `","message":{"role":"user","content":"hello"}}` + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// TestIngester_ColdStartDiscovery exercises spec §8 scenario 1: two
// well-formed three-message transcripts yield two sessions, six
// messages, and exactly one session_loaded envelope per file.
func TestIngester_ColdStartDiscovery(t *testing.T) {
	root := t.TempDir()
	proj := discovery.EncodePath("/home/user/proj")
	s1 := "4b1f7f9a-7f2e-4f1a-9c3e-2b6c1e4d5a6f"
	s2 := "5c2e8e0b-8e3f-5e2b-ad4f-3c7d2f5e6b70"
	writeTranscript(t, filepath.Join(root, "projects", proj, s1+".jsonl"), s1, 3)
	writeTranscript(t, filepath.Join(root, "projects", proj, s2+".jsonl"), s2, 3)

	idx := index.New()
	b := bus.NewMemoryBus(zerolog.Nop())
	defer b.Close()
	sub := b.Subscribe(bus.TopicSessionMessages)
	defer sub.Unsubscribe()

	ig := newIngester(idx, b, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ig.LoadAll(ctx, []string{root}))

	assert.Len(t, idx.ListSessions(), 2)
	counts := idx.CountAll()
	assert.Equal(t, 6, counts.Messages)

	loaded := 0
	messages := 0
drain:
	for {
		select {
		case d := <-sub.C():
			var typed struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal(d.Envelope.Payload, &typed))
			if typed.Type == "session_loaded" {
				loaded++
			} else {
				messages++
			}
		case <-time.After(100 * time.Millisecond):
			break drain
		}
	}
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 6, messages)
}

// TestIngester_SubagentRegisteredAfterParentSession verifies the
// two-pass registerAll: a subagent file's parent session always exists
// by the time its agent record is spawned, regardless of scan order.
func TestIngester_SubagentRegisteredAfterParentSession(t *testing.T) {
	root := t.TempDir()
	proj := discovery.EncodePath("/home/user/proj")
	parent := "4b1f7f9a-7f2e-4f1a-9c3e-2b6c1e4d5a6f"
	writeTranscript(t, filepath.Join(root, "projects", proj, parent+".jsonl"), parent, 1)
	writeTranscript(t, filepath.Join(root, "projects", proj, parent, "subagents", "agent-worker1.jsonl"), parent, 1)

	idx := index.New()
	b := bus.NewMemoryBus(zerolog.Nop())
	defer b.Close()

	ig := newIngester(idx, b, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ig.LoadAll(ctx, []string{root}))

	_, ok := idx.QuerySessionByID(parent)
	assert.True(t, ok)

	agents := idx.QueryAgentsBySession(parent)
	require.Len(t, agents, 1)
	assert.Equal(t, "worker1", agents[0].Name)
}

// TestIngester_WatchLoopTailsAppendedMessages verifies live file growth
// after cold start is picked up incrementally, without re-ingesting the
// lines LoadAll already consumed.
func TestIngester_WatchLoopTailsAppendedMessages(t *testing.T) {
	root := t.TempDir()
	proj := discovery.EncodePath("/home/user/proj")
	s1 := "4b1f7f9a-7f2e-4f1a-9c3e-2b6c1e4d5a6f"
	path := filepath.Join(root, "projects", proj, s1+".jsonl")
	writeTranscript(t, path, s1, 2)

	idx := index.New()
	b := bus.NewMemoryBus(zerolog.Nop())
	defer b.Close()

	ig := newIngester(idx, b, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ig.LoadAll(ctx, []string{root}))
	require.Len(t, idx.QueryMessagesBySession(s1), 2)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"user","sessionId":"` + s1 + `","message":{"role":"user","content":"more"}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ig.handleEvent(ctx, watcher.FileEvent{Path: path, Kind: watcher.Modified, Timestamp: time.Now()}, []string{root})

	assert.Len(t, idx.QueryMessagesBySession(s1), 3)
}
