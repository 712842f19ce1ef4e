// Package watcher emits path-level filesystem change events for session
// discovery and transcript tailing (spec §4.1). It prefers a kernel
// tracepoint backend (cilium/ebpf) that carries the originating PID,
// falling back to a portable file-notify backend when the kernel
// backend can't be initialized.
package watcher

import "time"

// Kind is the filesystem operation a FileEvent reports.
type Kind string

const (
	Created  Kind = "created"
	Modified Kind = "modified"
	Deleted  Kind = "deleted"
)

// FileEvent is the contract both backends emit. PID is populated by the
// tracepoint backend and absent (nil) on the fallback backend;
// consumers must tolerate both. Paths are reported as received from the
// source and are not canonicalized here.
type FileEvent struct {
	Path      string
	Kind      Kind
	PID       *uint32
	Timestamp time.Time
}

// backend is the minimal surface both implementations satisfy. Each
// backend hands events to the deliver function given to its
// constructor (Watcher.deliver); Watcher owns the drop-oldest policy
// and lag counting on its out channel, so backends stay oblivious to
// backpressure.
type backend interface {
	watch(path string) error
	unwatch(path string) error
	close() error
}
