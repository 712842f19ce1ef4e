package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/bus"
	"github.com/noaide-sh/noaide/internal/parser"
	"github.com/noaide-sh/noaide/internal/terminal"
)

// observedPollInterval is the tailing cadence spec §4.6 specifies.
const observedPollInterval = 200 * time.Millisecond

// ObservedConfig describes an existing transcript file and terminal-
// multiplexer target an Observed session attaches to.
type ObservedConfig struct {
	SessionID      string
	TranscriptPath string
	// Target is a tmux target of the form "session:window".
	Target string
}

// Observed attaches to a transcript file someone else is writing and a
// terminal-multiplexer target someone else created, tailing the one and
// sending input to the other (spec §4.6).
type Observed struct {
	cfg  ObservedConfig
	bus  bus.Bus
	tmux terminal.TmuxExecutor
	log  zerolog.Logger

	offset int64
	state  atomicState

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewObserved validates the transcript file exists and the tmux target
// is reachable, then starts the 200ms tailing task.
func NewObserved(ctx context.Context, cfg ObservedConfig, tmux terminal.TmuxExecutor, b bus.Bus, log zerolog.Logger) (*Observed, error) {
	if _, err := os.Stat(cfg.TranscriptPath); err != nil {
		return nil, fmt.Errorf("supervisor: transcript not found: %w", err)
	}

	session, _, _ := splitTarget(cfg.Target)
	if !tmux.HasSession(ctx, session) {
		return nil, fmt.Errorf("supervisor: tmux target %q unreachable", cfg.Target)
	}

	o := &Observed{
		cfg:  cfg,
		bus:  b,
		tmux: tmux,
		log:  log.With().Str("component", "supervisor.observed").Str("session_id", cfg.SessionID).Logger(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	o.state.Store(StateStarting)

	go o.tailLoop(ctx)
	return o, nil
}

// State returns the session's current lifecycle state.
func (o *Observed) State() State { return o.state.Load() }

func (o *Observed) tailLoop(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(observedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

func (o *Observed) poll(ctx context.Context) {
	msgs, newOffset, err := parser.ParseIncremental(o.cfg.TranscriptPath, o.offset, func(lineNo int, reason string) {
		o.log.Warn().Int("line", lineNo).Str("reason", reason).Msg("supervisor: skipped malformed transcript line")
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("supervisor: tail poll failed")
		o.transition(ctx, StateError)
		return
	}
	o.offset = newOffset

	for _, msg := range msgs {
		o.project(ctx, msg)
	}
}

func (o *Observed) project(ctx context.Context, msg parser.Message) {
	switch {
	case msg.StopReason == "end_turn":
		o.transition(ctx, StateIdle)
	case msg.Role == parser.RoleAssistant && msg.StopReason == "":
		o.transition(ctx, StateActive)
	}
	publishJSON(ctx, o.bus, bus.SourceJsonl, o.cfg.SessionID, outputEvent{SessionID: o.cfg.SessionID, Text: msg.Text})
}

func (o *Observed) transition(ctx context.Context, next State) {
	if o.state.Swap(next) == next {
		return
	}
	publishJSON(ctx, o.bus, bus.SourceJsonl, o.cfg.SessionID, stateChangeEvent{SessionID: o.cfg.SessionID, State: next.String()})
}

// SendInput forwards data to the terminal target via send-keys.
func (o *Observed) SendInput(ctx context.Context, data []byte) error {
	text := string(data)
	if text == "\r" {
		return o.tmux.SendKeys(ctx, o.cfg.Target, "Enter", false)
	}
	if err := o.tmux.SendText(ctx, o.cfg.Target, text); err != nil {
		return o.tmux.SendKeys(ctx, o.cfg.Target, text, true)
	}
	return nil
}

// Close stops the tailing task via its watch channel and waits for it to
// exit (spec §4.6).
func (o *Observed) Close() error {
	o.closeOnce.Do(func() {
		close(o.stop)
		<-o.done
		o.state.Store(StateClosed)
	})
	return nil
}

// splitTarget splits a "session:window" tmux target into its parts.
func splitTarget(target string) (session, window string, ok bool) {
	for i := 0; i < len(target); i++ {
		if target[i] == ':' {
			return target[:i], target[i+1:], true
		}
	}
	return target, "", false
}
