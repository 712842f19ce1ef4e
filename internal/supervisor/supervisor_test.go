package supervisor

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
	"github.com/noaide-sh/noaide/internal/terminal"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "closed", StateClosed.String())
}

func TestAtomicState_SwapReturnsPrevious(t *testing.T) {
	var a atomicState
	a.Store(StateStarting)
	prev := a.Swap(StateActive)
	assert.Equal(t, StateStarting, prev)
	assert.Equal(t, StateActive, a.Load())
}

func TestManaged_TransitionsToActiveOnOutput(t *testing.T) {
	b := bus.NewMemoryBus(testLogger())
	sub := b.Subscribe(bus.TopicSystemEvents)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := NewManaged(ctx, ManagedConfig{SessionID: "sess-1", Command: []string{"cat"}}, b, testLogger())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.ptmx.WriteString("hello\n")
	require.NoError(t, err)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case d := <-sub.C():
			var ev outputEvent
			if json.Unmarshal(d.Envelope.Payload, &ev) == nil && ev.SessionID == "sess-1" {
				assert.Equal(t, StateActive, m.State())
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for managed session output")
		}
	}
}

func TestManaged_CloseSendsCtrlCThenCtrlD(t *testing.T) {
	b := bus.NewMemoryBus(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := NewManaged(ctx, ManagedConfig{SessionID: "sess-2", Command: []string{"cat"}}, b, testLogger())
	require.NoError(t, err)

	err = m.Close()
	require.NoError(t, err)
	assert.Equal(t, StateClosed, m.State())

	// Close is idempotent.
	assert.NoError(t, m.Close())
}

func TestNewManaged_RequiresCommand(t *testing.T) {
	b := bus.NewMemoryBus(testLogger())
	_, err := NewManaged(context.Background(), ManagedConfig{SessionID: "sess-3"}, b, testLogger())
	assert.Error(t, err)
}

// fakeTmux is a minimal terminal.TmuxExecutor double for Observed tests.
type fakeTmux struct {
	hasSession bool
	sentKeys   []string
	sentText   []string
}

func (f *fakeTmux) HasSession(ctx context.Context, session string) bool { return f.hasSession }
func (f *fakeTmux) ListSessions(ctx context.Context) ([]string, error)  { return nil, nil }
func (f *fakeTmux) NewSession(ctx context.Context, session, workdir, firstWindowName string) error {
	return nil
}
func (f *fakeTmux) KillSession(ctx context.Context, session string) error { return nil }
func (f *fakeTmux) NewWindow(ctx context.Context, session, window, workdir string, command []string) error {
	return nil
}
func (f *fakeTmux) KillWindow(ctx context.Context, session, window string) error { return nil }
func (f *fakeTmux) ListWindows(ctx context.Context, session string) ([]terminal.WindowInfo, error) {
	return nil, nil
}
func (f *fakeTmux) CapturePane(ctx context.Context, target string, withHistory bool) ([]byte, error) {
	return nil, nil
}
func (f *fakeTmux) SendKeys(ctx context.Context, target, keys string, literal bool) error {
	f.sentKeys = append(f.sentKeys, keys)
	return nil
}
func (f *fakeTmux) SendText(ctx context.Context, target, text string) error {
	f.sentText = append(f.sentText, text)
	return nil
}
func (f *fakeTmux) StartPipePane(ctx context.Context, target, pipePath string) error { return nil }
func (f *fakeTmux) StopPipePane(ctx context.Context, target string) error            { return nil }
func (f *fakeTmux) ResizeWindow(ctx context.Context, target string, cols, rows int) error {
	return nil
}
func (f *fakeTmux) GetCursorPosition(ctx context.Context, target string) (int, int, error) {
	return 0, 0, nil
}
func (f *fakeTmux) SetEnvironment(ctx context.Context, session, name, value string) error { return nil }
func (f *fakeTmux) SetOption(ctx context.Context, session, name, value string) error      { return nil }

func writeTranscriptLines(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	var data []byte
	for _, l := range lines {
		data = append(data, []byte(l+"\n")...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewObserved_RejectsMissingTranscript(t *testing.T) {
	b := bus.NewMemoryBus(testLogger())
	_, err := NewObserved(context.Background(), ObservedConfig{
		SessionID:      "sess-4",
		TranscriptPath: "/tmp/noaide-does-not-exist.jsonl",
		Target:         "main:0",
	}, &fakeTmux{hasSession: true}, b, testLogger())
	assert.Error(t, err)
}

func TestNewObserved_RejectsUnreachableTarget(t *testing.T) {
	path := writeTranscriptLines(t, `{"type":"user","sessionId":"s","message":"hi"}`)
	b := bus.NewMemoryBus(testLogger())
	_, err := NewObserved(context.Background(), ObservedConfig{
		SessionID:      "sess-5",
		TranscriptPath: path,
		Target:         "main:0",
	}, &fakeTmux{hasSession: false}, b, testLogger())
	assert.Error(t, err)
}

func TestObserved_EndTurnTransitionsToIdle(t *testing.T) {
	path := writeTranscriptLines(t,
		`{"type":"assistant","sessionId":"s","message":{"role":"assistant","content":"thinking","stop_reason":"end_turn"}}`,
	)
	b := bus.NewMemoryBus(testLogger())
	sub := b.Subscribe(bus.TopicSystemEvents)
	defer sub.Unsubscribe()

	o, err := NewObserved(context.Background(), ObservedConfig{
		SessionID:      "sess-6",
		TranscriptPath: path,
		Target:         "main:0",
	}, &fakeTmux{hasSession: true}, b, testLogger())
	require.NoError(t, err)
	defer o.Close()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case d := <-sub.C():
			var sc stateChangeEvent
			if json.Unmarshal(d.Envelope.Payload, &sc) == nil && sc.State == "idle" {
				assert.Equal(t, StateIdle, o.State())
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for idle transition")
		}
	}
}

func TestObserved_SendInput_EnterUsesSendKeys(t *testing.T) {
	path := writeTranscriptLines(t, `{"type":"user","sessionId":"s","message":"hi"}`)
	b := bus.NewMemoryBus(testLogger())
	tmux := &fakeTmux{hasSession: true}

	o, err := NewObserved(context.Background(), ObservedConfig{
		SessionID:      "sess-7",
		TranscriptPath: path,
		Target:         "main:0",
	}, tmux, b, testLogger())
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.SendInput(context.Background(), []byte("\r")))
	require.Len(t, tmux.sentKeys, 1)
	assert.Equal(t, "Enter", tmux.sentKeys[0])
}

func TestSplitTarget(t *testing.T) {
	session, window, ok := splitTarget("main:0")
	assert.True(t, ok)
	assert.Equal(t, "main", session)
	assert.Equal(t, "0", window)

	session, _, ok = splitTarget("justname")
	assert.False(t, ok)
	assert.Equal(t, "justname", session)
}
