package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend is the portable fallback (spec §4.1 "generic
// file-notify"). It has no PID to report. Watching a directory walks it
// recursively and adds every subdirectory, ref-counted so overlapping
// Watch calls on shared ancestors don't fight over Remove.
type fsnotifyBackend struct {
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	refs    map[string]int
	closeCh chan struct{}
	wg      sync.WaitGroup
	deliver func(FileEvent)
}

func newFsnotifyBackend(deliver func(FileEvent)) (*fsnotifyBackend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	b := &fsnotifyBackend{
		fsw:     fsw,
		refs:    make(map[string]int),
		closeCh: make(chan struct{}),
		deliver: deliver,
	}
	b.wg.Add(1)
	go b.run()
	return b, nil
}

func (b *fsnotifyBackend) watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watcher: stat %s: %w", abs, err)
	}

	if !info.IsDir() {
		return b.addOne(abs)
	}

	return filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort recursive watch, skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		return b.addOne(p)
	})
}

func (b *fsnotifyBackend) unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	info, statErr := os.Stat(abs)
	if statErr == nil && info.IsDir() {
		_ = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			b.removeOne(p)
			return nil
		})
		return nil
	}

	b.removeOne(abs)
	return nil
}

func (b *fsnotifyBackend) addOne(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refs[path]++
	if b.refs[path] == 1 {
		if err := b.fsw.Add(path); err != nil {
			b.refs[path]--
			if b.refs[path] == 0 {
				delete(b.refs, path)
			}
			return fmt.Errorf("watcher: add %s: %w", path, err)
		}
	}
	return nil
}

func (b *fsnotifyBackend) removeOne(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refs[path]--
	if b.refs[path] <= 0 {
		_ = b.fsw.Remove(path)
		delete(b.refs, path)
	}
}

func (b *fsnotifyBackend) close() error {
	close(b.closeCh)
	err := b.fsw.Close()
	b.wg.Wait()
	return err
}

func (b *fsnotifyBackend) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.closeCh:
			return
		case ev, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			b.handle(ev)
		case _, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (b *fsnotifyBackend) handle(ev fsnotify.Event) {
	var kind Kind
	switch {
	case ev.Has(fsnotify.Create):
		kind = Created
		// New subdirectories created under a watched tree need their
		// own watch registered to stay recursive.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = b.watch(ev.Name)
		}
	case ev.Has(fsnotify.Write):
		kind = Modified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = Deleted
	default:
		return
	}

	b.deliver(FileEvent{Path: ev.Name, Kind: kind, Timestamp: time.Now()})
}
