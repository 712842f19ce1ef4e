package transport

import (
	"context"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
)

// rttRegistry records the latest smoothed RTT per QUIC connection, fed
// by a logging.ConnectionTracer hook (spec §4.5: "measures round-trip
// time every 100 ms via the underlying protocol's path statistics" —
// quic-go surfaces those statistics through its tracer callback, not a
// method on quic.Connection itself). Connections are correlated between
// the tracer (which only sees a context) and the running connection
// (which only sees a *quic.Conn) via quic.ConnectionTracingKey, the same
// mechanism quic-go's own qlog integration uses to name per-connection
// log files.
type rttRegistry struct {
	mu    sync.Mutex
	byKey map[quic.ConnectionTracingID]time.Duration
}

func newRTTRegistry() *rttRegistry {
	return &rttRegistry{byKey: make(map[quic.ConnectionTracingID]time.Duration)}
}

func (r *rttRegistry) set(id quic.ConnectionTracingID, rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[id] = rtt
}

// get returns the last observed smoothed RTT for the connection the
// given context belongs to, or 0 if none has landed yet.
func (r *rttRegistry) get(ctx context.Context) time.Duration {
	id, ok := ctx.Value(quic.ConnectionTracingKey).(quic.ConnectionTracingID)
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey[id]
}

func (r *rttRegistry) forget(id quic.ConnectionTracingID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, id)
}

// tracer builds the logging.Tracer passed into quic.Config: one
// ConnectionTracer per accepted connection, reporting into the registry
// as the congestion controller updates its RTT estimate.
func (r *rttRegistry) tracer() func(ctx context.Context, _ logging.Perspective, _ logging.ConnectionID) *logging.ConnectionTracer {
	return func(ctx context.Context, _ logging.Perspective, _ logging.ConnectionID) *logging.ConnectionTracer {
		id, _ := ctx.Value(quic.ConnectionTracingKey).(quic.ConnectionTracingID)
		return &logging.ConnectionTracer{
			UpdatedMetrics: func(rttStats *logging.RTTStats, _, _ logging.ByteCount, _ int) {
				r.set(id, rttStats.SmoothedRTT())
			},
			ClosedConnection: func(error) {
				r.forget(id)
			},
		}
	}
}
