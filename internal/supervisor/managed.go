package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/bus"
	"github.com/noaide-sh/noaide/internal/watcher"
)

const (
	managedCols       = 80
	managedRows       = 24
	readBufferSize    = 4096
	idleSilence       = 2 * time.Second
	ctrlCToCtrlDDelay = 100 * time.Millisecond
)

// ManagedConfig describes the assistant process a Managed session
// spawns.
type ManagedConfig struct {
	SessionID string
	Command   []string // argv[0] is the binary, rest are its arguments
	ProxyURL  string    // if set, exported as ANTHROPIC_BASE_URL
	Env       []string  // additional KEY=VALUE pairs
}

// Managed owns a pseudo-terminal it spawned itself and projects the
// assistant process's output onto the bus (spec §4.6).
type Managed struct {
	cfg ManagedConfig
	bus bus.Bus
	log zerolog.Logger

	ptmx *os.File
	cmd  *exec.Cmd

	state atomicState
	idle  *watcher.Debouncer

	closeOnce sync.Once
	closeErr  error
}

// NewManaged allocates an 80x24 pseudo-terminal, spawns cfg.Command in
// its slave end, and starts projecting its output.
func NewManaged(ctx context.Context, cfg ManagedConfig, b bus.Bus, log zerolog.Logger) (*Managed, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("supervisor: managed session requires a command")
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	env := append(os.Environ(), cfg.Env...)
	if cfg.ProxyURL != "" {
		env = append(env, "ANTHROPIC_BASE_URL="+cfg.ProxyURL)
	}
	cmd.Env = env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: managedRows, Cols: managedCols})
	if err != nil {
		return nil, fmt.Errorf("supervisor: start pty: %w", err)
	}

	m := &Managed{
		cfg:  cfg,
		bus:  b,
		log:  log.With().Str("component", "supervisor.managed").Str("session_id", cfg.SessionID).Logger(),
		ptmx: ptmx,
		cmd:  cmd,
		idle: watcher.NewDebouncer(idleSilence),
	}
	m.state.Store(StateStarting)

	// Arm the idle timer from construction, not from first output: a
	// process that never writes anything is still idle two seconds
	// after spawn. Mirrors the idle task the original implementation
	// spawns alongside its PTY reader.
	m.idle.Debounce(m.cfg.SessionID, func() { m.onIdle(ctx) })

	go m.readLoop(ctx)
	return m, nil
}

// State returns the session's current lifecycle state.
func (m *Managed) State() State { return m.state.Load() }

func (m *Managed) readLoop(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := m.ptmx.Read(buf)
		if n > 0 {
			m.onOutput(ctx, string(buf[:n]))
		}
		if err != nil {
			if m.state.Load() != StateClosed {
				// A read error while we didn't ask to close means the
				// assistant process died or the pty broke unexpectedly.
				m.transition(ctx, StateError)
			}
			return
		}
	}
}

func (m *Managed) onOutput(ctx context.Context, text string) {
	m.transition(ctx, StateActive)
	m.idle.Debounce(m.cfg.SessionID, func() { m.onIdle(ctx) })
	publishJSON(ctx, m.bus, bus.SourcePty, m.cfg.SessionID, outputEvent{SessionID: m.cfg.SessionID, Text: text})
}

// onIdle fires after idleSilence of quiet, whether that quiet started
// at construction or after the last output. Only Starting and Active
// sessions go idle; a closed or errored session ignores a debounce that
// was already in flight when it stopped.
func (m *Managed) onIdle(ctx context.Context) {
	switch m.state.Load() {
	case StateStarting, StateActive:
		m.transition(ctx, StateIdle)
	}
}

func (m *Managed) transition(ctx context.Context, next State) {
	if m.state.Swap(next) == next {
		return
	}
	publishJSON(ctx, m.bus, bus.SourcePty, m.cfg.SessionID, stateChangeEvent{SessionID: m.cfg.SessionID, State: next.String()})
}

// Close sends Ctrl-C, waits 100 ms, then Ctrl-D (EOF), per spec §4.6.
func (m *Managed) Close() error {
	m.closeOnce.Do(func() {
		m.idle.Cancel(m.cfg.SessionID)

		if _, err := m.ptmx.Write([]byte{0x03}); err != nil {
			m.log.Warn().Err(err).Msg("supervisor: write Ctrl-C failed")
		}
		time.Sleep(ctrlCToCtrlDDelay)
		if _, err := m.ptmx.Write([]byte{0x04}); err != nil {
			m.log.Warn().Err(err).Msg("supervisor: write Ctrl-D failed")
		}

		m.state.Store(StateClosed)
		m.closeErr = m.ptmx.Close()
		if m.cmd.Process != nil {
			_, _ = m.cmd.Process.Wait()
		}
	})
	return m.closeErr
}
