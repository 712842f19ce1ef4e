// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command noaide-attach is the second entry point (spec §1): it spawns
// a managed assistant process under a pseudo-terminal, or attaches to
// one already running under an external terminal multiplexer, and
// projects its I/O onto a bus the way internal/supervisor describes
// (spec §4.6). It runs standalone rather than as a client of a running
// noaide core — see DESIGN.md's Open Question entry on why the core's
// transport (server-only, QUIC/WebTransport) isn't a fit for a second
// local process instead of a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/bus"
	"github.com/noaide-sh/noaide/internal/supervisor"
	"github.com/noaide-sh/noaide/internal/terminal"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	mode := os.Args[1]
	var err error
	switch mode {
	case "managed":
		err = runManaged(os.Args[2:])
	case "observed":
		err = runObserved(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "noaide-attach: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  noaide-attach managed -session-id ID [-proxy-url URL] -- COMMAND [ARGS...]
  noaide-attach observed -session-id ID -transcript PATH -target SESSION:WINDOW`)
}

func runManaged(args []string) error {
	fs := flag.NewFlagSet("managed", flag.ExitOnError)
	sessionID := fs.String("session-id", "", "session identifier (required)")
	proxyURL := fs.String("proxy-url", "", "ANTHROPIC_BASE_URL to export to the assistant process")
	debug := fs.Bool("debug", false, "enable debug logging")
	dashDash := indexOfDashDash(args)
	if dashDash >= 0 {
		fs.Parse(args[:dashDash])
	} else {
		fs.Parse(args)
	}

	var command []string
	if dashDash >= 0 {
		command = args[dashDash+1:]
	}
	if *sessionID == "" || len(command) == 0 {
		usage()
		return fmt.Errorf("missing -session-id or command")
	}

	log := newLogger(*debug)
	b := bus.NewMemoryBus(log)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := supervisor.NewManaged(ctx, supervisor.ManagedConfig{
		SessionID: *sessionID,
		Command:   command,
		ProxyURL:  *proxyURL,
	}, b, log)
	if err != nil {
		return err
	}
	defer m.Close()

	waitForSignal(ctx)
	return m.Close()
}

func runObserved(args []string) error {
	fs := flag.NewFlagSet("observed", flag.ExitOnError)
	sessionID := fs.String("session-id", "", "session identifier (required)")
	transcript := fs.String("transcript", "", "path to the transcript file to tail (required)")
	target := fs.String("target", "", "tmux target \"session:window\" to attach to (required)")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Parse(args)

	if *sessionID == "" || *transcript == "" || *target == "" {
		usage()
		return fmt.Errorf("missing -session-id, -transcript, or -target")
	}

	log := newLogger(*debug)
	b := bus.NewMemoryBus(log)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tmux := terminal.NewRealTmuxExecutor()
	o, err := supervisor.NewObserved(ctx, supervisor.ObservedConfig{
		SessionID:      *sessionID,
		TranscriptPath: *transcript,
		Target:         *target,
	}, tmux, b, log)
	if err != nil {
		return err
	}
	defer o.Close()

	relayStdinTo(ctx, o)
	waitForSignal(ctx)
	return o.Close()
}

// relayStdinTo forwards the controlling terminal's stdin to the
// observed session's tmux target, so an attach session is interactive
// even though output only flows through the bus (spec §4.6's
// SendInput, not a local pty).
func relayStdinTo(ctx context.Context, o *supervisor.Observed) {
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if sendErr := o.SendInput(ctx, buf[:n]); sendErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

func waitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func indexOfDashDash(args []string) int {
	for i, a := range args {
		if a == "--" {
			return i
		}
	}
	return -1
}
