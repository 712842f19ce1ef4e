package watcher

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// channelCapacity is the hard event-channel capacity from spec §4.1:
// "a hard event-channel capacity of 1024 is used; overflow drops the
// oldest event and logs a lag counter."
const channelCapacity = 1024

// Watcher is the public contract: watch(path) and unwatch(path), both
// recursive on directories and both succeeding when repeated (see Watch
// for the fallback backend's ref-counting), with events delivered on a
// single broadcast channel.
type Watcher struct {
	log zerolog.Logger

	backend    backend
	usedEBPF   bool
	out        chan FileEvent
	mu         sync.Mutex
	lagged     atomic.Uint64
	closeOnce  sync.Once
}

// New constructs a Watcher. It first attempts the kernel tracepoint
// backend; if that fails to initialize (missing capability, unsupported
// kernel, or any other reason), it logs and falls back to fsnotify, per
// spec §4.1's stated policy: "No retry."
func New(log zerolog.Logger) (*Watcher, error) {
	log = log.With().Str("component", "watcher").Logger()
	w := &Watcher{
		log: log,
		out: make(chan FileEvent, channelCapacity),
	}

	eb, err := newEBPFBackend(w.deliver)
	if err == nil {
		w.backend = eb
		w.usedEBPF = true
		log.Info().Msg("watcher: using kernel tracepoint backend")
		return w, nil
	}
	log.Warn().Err(err).Msg("watcher: tracepoint backend unavailable, falling back to fsnotify")

	fb, ferr := newFsnotifyBackend(w.deliver)
	if ferr != nil {
		return nil, ferr
	}
	w.backend = fb
	return w, nil
}

// UsedKernelBackend reports whether the primary eBPF backend is active,
// for diagnostics/status surfaces.
func (w *Watcher) UsedKernelBackend() bool { return w.usedEBPF }

// Watch begins watching path (recursively, if it's a directory).
// Watching an already-watched path succeeds. On the tracepoint backend
// it changes nothing; on the fsnotify fallback each directory watch is
// ref-counted, so a path watched twice stays watched until it has been
// unwatched twice.
func (w *Watcher) Watch(path string) error {
	return w.backend.watch(path)
}

// Unwatch stops watching path. Idempotent: unwatching a path that isn't
// currently watched is a no-op success.
func (w *Watcher) Unwatch(path string) error {
	return w.backend.unwatch(path)
}

// Events returns the broadcast channel FileEvents are delivered on.
func (w *Watcher) Events() <-chan FileEvent { return w.out }

// LaggedCount returns how many events have been dropped due to the
// consumer falling behind the hard channel capacity.
func (w *Watcher) LaggedCount() uint64 { return w.lagged.Load() }

// Close tears down the active backend and stops delivery.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.backend.close()
	})
	return err
}

// deliver applies the drop-oldest overflow policy: on a full channel,
// evict the oldest buffered event, count the lag, and enqueue the new
// one. Never blocks the backend's reader goroutine.
func (w *Watcher) deliver(e FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case w.out <- e:
		return
	default:
	}

	select {
	case <-w.out:
		w.lagged.Add(1)
		w.log.Warn().Uint64("lagged_total", w.lagged.Load()).Msg("watcher: event channel full, dropped oldest")
	default:
	}
	select {
	case w.out <- e:
	default:
		// Lost the race against a concurrent reader drain; drop this
		// event rather than block.
	}
}
