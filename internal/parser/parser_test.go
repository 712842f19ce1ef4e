package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDispatch_UserTextLine(t *testing.T) {
	line := `{"type":"user","sessionId":"s1","message":{"role":"user","content":"hello there"}}`
	m, ok := decodeLine([]byte(line))
	require.True(t, ok)
	assert.Equal(t, "s1", m.SessionID)
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, "hello there", m.Text)
	assert.Equal(t, MessageText, m.MessageType)
}

func TestDispatch_AssistantToolUse(t *testing.T) {
	line := `{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":[{"type":"text","text":"ok"},{"type":"tool_use","id":"t1","name":"bash","input":{}}]}}`
	m, ok := decodeLine([]byte(line))
	require.True(t, ok)
	assert.Equal(t, MessageToolUse, m.MessageType)
	assert.Equal(t, "ok", m.Text)
}

func TestDispatch_ThinkingTakesPrecedenceOverToolUse(t *testing.T) {
	line := `{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":[{"type":"thinking","text":"hmm"},{"type":"tool_use","id":"t1","name":"bash"}]}}`
	m, ok := decodeLine([]byte(line))
	require.True(t, ok)
	assert.Equal(t, MessageThinking, m.MessageType)
}

func TestDispatch_UnknownTypePreservedMinimal(t *testing.T) {
	line := `{"type":"future-thing","sessionId":"s1"}`
	m, ok := decodeLine([]byte(line))
	require.True(t, ok)
	assert.Equal(t, "s1", m.SessionID)
	assert.Equal(t, MessageText, m.MessageType)
	assert.Equal(t, "", m.Text)
}

func TestDispatch_ZeroByteLineSkipped(t *testing.T) {
	_, ok := decodeLine([]byte(""))
	assert.False(t, ok)
}

func TestDispatch_NonUTF8LineSkipped(t *testing.T) {
	_, ok := decodeLine([]byte{0xff, 0xfe, 0x00})
	assert.False(t, ok)
}

func TestDispatch_MalformedJSONSkipped(t *testing.T) {
	_, ok := decodeLine([]byte(`{"type": "user", not json`))
	assert.False(t, ok)
}

func TestParseFile_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	writeLines(t, path,
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":"hi"}}`,
		``,
		`not json at all`,
		`{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":"yo"}}`,
	)

	var skips []string
	msgs, err := ParseFile(path, func(lineNo int, reason string) {
		skips = append(skips, reason)
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "yo", msgs[1].Text)
	require.Len(t, skips, 1)
}

// TestIncremental_ColdStartDiscovery covers spec §8 scenario 1's shape:
// a well-formed file with 3 messages parses to exactly 3 messages at
// offset 0.
func TestIncremental_ColdStartDiscovery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	writeLines(t, path,
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":"one"}}`,
		`{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":"two"}}`,
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":"three"}}`,
	)

	msgs, offset, err := ParseIncremental(path, 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), offset)
}

// TestIncremental_TailingAppend covers spec §8 scenario 2: parse a
// 2-line transcript, append a third line, parse again at the saved
// offset and get exactly 1 new message.
func TestIncremental_TailingAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	writeLines(t, path,
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":"one"}}`,
		`{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":"two"}}`,
	)

	msgs, offset, err := ParseIncremental(path, 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"user","sessionId":"s1","message":{"role":"user","content":"three"}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	msgs2, _, err := ParseIncremental(path, offset, nil)
	require.NoError(t, err)
	require.Len(t, msgs2, 1)
	assert.Equal(t, "three", msgs2[0].Text)
}

// TestIncremental_TruncationRestart covers the restart-from-zero rule:
// if from_offset exceeds the file's current length, parsing resumes
// from the beginning.
func TestIncremental_TruncationRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	writeLines(t, path, `{"type":"user","sessionId":"s1","message":{"role":"user","content":"only"}}`)

	msgs, offset, err := ParseIncremental(path, 10_000, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "only", msgs[0].Text)
	assert.Greater(t, offset, int64(0))
}

// TestIncremental_IncompleteTrailingLineNotConsumed covers the edge
// case: a line without a trailing newline is not parsed and the offset
// stops before it.
func TestIncremental_IncompleteTrailingLineNotConsumed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	complete := `{"type":"user","sessionId":"s1","message":{"role":"user","content":"done"}}` + "\n"
	incomplete := `{"type":"user","sessionId":"s1","message":{"role":"user","content":"unfinis`
	require.NoError(t, os.WriteFile(path, []byte(complete+incomplete), 0o644))

	msgs, offset, err := ParseIncremental(path, 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "done", msgs[0].Text)
	assert.Equal(t, int64(len(complete)), offset)
}

// TestParseFile_Idempotence covers spec §8's round-trip law:
// parse_file(f) equals the concatenation of parse_incremental(f, 0)
// outputs regardless of chunking.
func TestParseFile_Idempotence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	writeLines(t, path,
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":"a"}}`,
		`{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":"b"}}`,
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":"c"}}`,
	)

	whole, err := ParseFile(path, nil)
	require.NoError(t, err)

	viaIncremental, offset, err := ParseIncremental(path, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, whole, viaIncremental)
	assert.Greater(t, offset, int64(0))
}

func TestLoadAll_ParallelBulkLoad(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 8; i++ {
		p := filepath.Join(dir, filepathBase(i))
		writeLines(t, p, `{"type":"user","sessionId":"s1","message":{"role":"user","content":"hi"}}`)
		paths = append(paths, p)
	}

	results, err := LoadAll(context.Background(), paths, nil)
	require.NoError(t, err)
	require.Len(t, results, 8)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Len(t, r.Messages, 1)
	}
}

func filepathBase(i int) string {
	return "session-" + string(rune('a'+i)) + ".jsonl"
}
