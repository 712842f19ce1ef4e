package transport

import "sync"

// replayFrame is one encoded frame retained for delta sync, tagged with
// the Lamport timestamp it was published at.
type replayFrame struct {
	Topic     string
	LogicalTS uint64
	Frame     []byte
}

// replayRing captures every successfully encoded frame (capacity 1000,
// spec §4.5). A newly connected client drains the frames that pass its
// tier filter before the live loop starts writing. Guarded by a plain
// mutex: writes are bounded-rate, one per published event (spec §5).
type replayRing struct {
	mu       sync.Mutex
	capacity int
	buf      []replayFrame
	start    int // index of the oldest retained frame
}

func newReplayRing(capacity int) *replayRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &replayRing{capacity: capacity}
}

// Add appends a frame, evicting the oldest once at capacity.
func (r *replayRing) Add(f replayFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, f)
		return
	}
	r.buf[r.start] = f
	r.start = (r.start + 1) % r.capacity
}

// Snapshot returns every retained frame in insertion (Lamport) order.
func (r *replayRing) Snapshot() []replayFrame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]replayFrame, len(r.buf))
	for i := range r.buf {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// EventsSince returns every retained frame with LogicalTS strictly
// greater than ts, for the future last_logical_ts extension point spec
// §4.5 names.
func (r *replayRing) EventsSince(ts uint64) []replayFrame {
	all := r.Snapshot()
	out := all[:0:0]
	for _, f := range all {
		if f.LogicalTS > ts {
			out = append(out, f)
		}
	}
	return out
}
