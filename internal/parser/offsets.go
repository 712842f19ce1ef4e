package parser

import "sync"

// OffsetTracker holds the path → last-byte-consumed map the supervisor
// consults before each incremental parse (spec §4.2: "the parser
// maintains a byte-offset map"). Offsets only move forward except when
// ParseIncremental detects truncation and restarts from zero.
type OffsetTracker struct {
	mu      sync.Mutex
	offsets map[string]int64
}

// NewOffsetTracker creates an empty tracker.
func NewOffsetTracker() *OffsetTracker {
	return &OffsetTracker{offsets: make(map[string]int64)}
}

// Get returns the last recorded offset for path, or 0 if unseen.
func (t *OffsetTracker) Get(path string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offsets[path]
}

// Set records the new offset for path.
func (t *OffsetTracker) Set(path string, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offsets[path] = offset
}

// Tail runs ParseIncremental against path using the tracker's current
// offset, then records the new offset before returning.
func (t *OffsetTracker) Tail(path string, onSkip func(lineNo int, reason string)) ([]Message, error) {
	from := t.Get(path)
	msgs, newOffset, err := ParseIncremental(path, from, onSkip)
	if err != nil {
		return nil, err
	}
	t.Set(path, newOffset)
	return msgs, nil
}
