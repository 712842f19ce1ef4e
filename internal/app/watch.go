package app

import (
	"context"

	"github.com/noaide-sh/noaide/internal/discovery"
	"github.com/noaide-sh/noaide/internal/watcher"
)

// watchLoop drains w.Events() until ctx is canceled or the channel
// closes, tailing whatever transcript each event names (spec §3: "the
// supervisor subscribes to [watcher] events for session-directory
// discovery and delegates transcript ingestion to the parser").
func (ig *ingester) watchLoop(ctx context.Context, w *watcher.Watcher, roots []string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.Kind == watcher.Deleted {
				continue
			}
			ig.handleEvent(ctx, ev, roots)
		}
	}
}

func (ig *ingester) handleEvent(ctx context.Context, ev watcher.FileEvent, roots []string) {
	if !ig.knownPath(ev.Path) {
		// A brand-new session file: rescan to pick up its registration
		// before attempting to tail it.
		files, err := discovery.Scan(roots)
		if err != nil {
			ig.log.Warn().Err(err).Msg("rescan after file event failed")
			return
		}
		ig.registerAll(files)
	}

	if !ig.knownPath(ev.Path) {
		return // not a recognized transcript file
	}

	msgs, err := ig.offsets.Tail(ev.Path, func(lineNo int, reason string) {
		ig.log.Warn().Str("path", ev.Path).Int("line", lineNo).Str("reason", reason).Msg("skipped malformed transcript line")
	})
	if err != nil {
		ig.log.Warn().Err(err).Str("path", ev.Path).Msg("incremental tail failed")
		return
	}
	if len(msgs) == 0 {
		return
	}
	ig.ingestMessages(ctx, ev.Path, msgs, false)
}

func (ig *ingester) knownPath(path string) bool {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	_, ok := ig.pathSession[path]
	return ok
}
