package watcher

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
)

// rawRecord is the fixed-size record the kernel program writes into the
// ring buffer, one per file-open-with-create, successful write, or
// unlink tracepoint hit (spec §4.1). It must match the layout the
// attached BPF program encodes with exactly.
type rawRecord struct {
	PID         uint32
	Op          uint8
	_           [1]byte // padding to align PathLen on a 2-byte boundary
	PathLen     uint16
	Path        [256]byte
	TimestampNs uint64
}

const (
	opCreate uint8 = 1
	opWrite  uint8 = 2
	opUnlink uint8 = 3
)

// objectEnvVar names the environment variable pointing at the compiled
// BPF object file (built out-of-band by a C toolchain, as is standard
// for cilium/ebpf consumers — this Go package only loads and attaches
// it). When unset, the default "tracepoints.o" next to the executable
// is tried.
const objectEnvVar = "NOAIDE_EBPF_OBJECT"

type ebpfBackend struct {
	coll    *ebpf.Collection
	links   []link.Link
	reader  *ringbuf.Reader
	deliver func(FileEvent)

	mu      sync.RWMutex
	watched map[string]struct{}

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// newEBPFBackend loads and attaches the kernel tracepoint program and
// starts the ring-buffer reader. It returns an error (never panics) on
// any failure — missing object file, insufficient capability,
// unsupported kernel — so the caller can fall back per spec §4.1's
// policy.
func newEBPFBackend(deliver func(FileEvent)) (*ebpfBackend, error) {
	objPath := os.Getenv(objectEnvVar)
	if objPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("watcher: locate executable for default BPF object path: %w", err)
		}
		objPath = filepath.Join(filepath.Dir(exe), "tracepoints.o")
	}
	if _, err := os.Stat(objPath); err != nil {
		return nil, fmt.Errorf("watcher: BPF object %s unavailable: %w", objPath, err)
	}

	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("watcher: load BPF collection spec: %w", err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("watcher: create BPF collection: %w", err)
	}

	var links []link.Link
	for _, name := range []string{"trace_openat_create", "trace_write", "trace_unlink"} {
		prog, ok := coll.Programs[name]
		if !ok {
			coll.Close()
			return nil, fmt.Errorf("watcher: BPF program %q missing from object", name)
		}
		l, err := link.Tracepoint("syscalls", name, prog, nil)
		if err != nil {
			for _, existing := range links {
				existing.Close()
			}
			coll.Close()
			return nil, fmt.Errorf("watcher: attach tracepoint %q: %w", name, err)
		}
		links = append(links, l)
	}

	events, ok := coll.Maps["events"]
	if !ok {
		for _, l := range links {
			l.Close()
		}
		coll.Close()
		return nil, fmt.Errorf("watcher: BPF ring buffer map %q missing from object", "events")
	}
	rd, err := ringbuf.NewReader(events)
	if err != nil {
		for _, l := range links {
			l.Close()
		}
		coll.Close()
		return nil, fmt.Errorf("watcher: create ring buffer reader: %w", err)
	}

	b := &ebpfBackend{
		coll:    coll,
		links:   links,
		reader:  rd,
		deliver: deliver,
		watched: make(map[string]struct{}),
		closeCh: make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b, nil
}

func (b *ebpfBackend) watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	b.mu.Lock()
	b.watched[abs] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *ebpfBackend) unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	b.mu.Lock()
	delete(b.watched, abs)
	b.mu.Unlock()
	return nil
}

// underWatch reports whether path falls under any currently-watched
// root (a watched directory covers everything beneath it).
func (b *ebpfBackend) underWatch(path string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for root := range b.watched {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (b *ebpfBackend) close() error {
	close(b.closeCh)
	err := b.reader.Close()
	for _, l := range b.links {
		l.Close()
	}
	b.coll.Close()
	b.wg.Wait()
	return err
}

func (b *ebpfBackend) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.closeCh:
			return
		default:
		}

		record, err := b.reader.Read()
		if err != nil {
			if err == ringbuf.ErrClosed {
				return
			}
			continue
		}

		var rec rawRecord
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &rec); err != nil {
			continue
		}
		b.handle(rec)
	}
}

func (b *ebpfBackend) handle(rec rawRecord) {
	var kind Kind
	switch rec.Op {
	case opCreate:
		kind = Created
	case opWrite:
		kind = Modified
	case opUnlink:
		kind = Deleted
	default:
		return
	}

	path := sanitizePath(rec.Path[:], int(rec.PathLen))
	if path == "" && kind == Modified {
		// Write events don't carry a path at the kernel layer; resolve
		// lazily from /proc/<pid>/fd. Not in the hot path (spec §4.1).
		path = resolveWritePath(rec.PID)
	}
	if path == "" || !b.underWatch(path) {
		return
	}

	pid := rec.PID
	b.deliver(FileEvent{
		Path:      path,
		Kind:      kind,
		PID:       &pid,
		Timestamp: time.Now(),
	})
}

func sanitizePath(raw []byte, n int) string {
	if n > len(raw) {
		n = len(raw)
	}
	if n < 0 {
		n = 0
	}
	return strings.TrimRight(string(raw[:n]), "\x00")
}

// resolveWritePath inspects /proc/<pid>/fd for an open regular file,
// used only to recover the path for write events, which the kernel
// program does not stamp with one directly.
func resolveWritePath(pid uint32) string {
	dir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "/dev/") && !strings.HasPrefix(target, "/proc/") {
			return target
		}
	}
	return ""
}
