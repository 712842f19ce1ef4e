package transport

import (
	"time"

	"github.com/quic-go/webtransport-go"

	"github.com/noaide-sh/noaide/internal/bus"
)

// rttTickInterval is the 100 ms cadence spec §4.5 measures RTT at.
const rttTickInterval = 100 * time.Millisecond

// connection drives one client's lifecycle: subscribe to every topic,
// drain replay, then alternate RTT/envelope/closed ticks until the
// stream errors or the session closes (spec §4.5).
type connection struct {
	server *Server
	sess   *webtransport.Session
	stream *webtransport.SendStream
	tier   *tierTracker

	subs    []bus.Subscription
	fanInCh chan bus.Delivery
}

func (c *connection) run() {
	ctx := c.sess.Context()

	c.subs = make([]bus.Subscription, 0, len(knownTopics))
	for _, topic := range knownTopics {
		c.subs = append(c.subs, c.server.bus.Subscribe(topic))
	}
	defer func() {
		for _, s := range c.subs {
			s.Unsubscribe()
		}
	}()

	if !c.drainReplay() {
		return
	}

	envelopes := c.fanIn()

	rttTicker := time.NewTicker(rttTickInterval)
	defer rttTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rttTicker.C:
			c.measureRTT()
		case d := <-envelopes:
			if !c.writeEnvelope(d) {
				return
			}
		}
	}
}

// fanIn merges every per-topic subscription channel into one, so run's
// select stays a fixed three-way loop regardless of topic count. Each
// relay goroutine exits on session close; it never blocks on a channel
// that might never be closed or written to again.
func (c *connection) fanIn() <-chan bus.Delivery {
	ch := make(chan bus.Delivery, 64)
	ctx := c.sess.Context()
	for _, s := range c.subs {
		s := s
		go func() {
			for {
				select {
				case d := <-s.C():
					select {
					case ch <- d:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return ch
}

func (c *connection) drainReplay() bool {
	tier := c.tier.Current()
	for _, f := range c.server.ring.Snapshot() {
		if !tier.allowsTopic(f.Topic) {
			continue
		}
		if _, err := c.stream.Write(f.Frame); err != nil {
			return false
		}
	}
	return true
}

func (c *connection) measureRTT() {
	rtt := c.server.rtt.get(c.sess.Connection.Context())
	if rtt == 0 {
		return // no sample has landed yet; keep the current tier
	}
	c.tier.Observe(rtt)
}

func (c *connection) writeEnvelope(d bus.Delivery) bool {
	tier := c.tier.Current()
	if !tier.allowsTopic(d.Envelope.Topic) {
		return true
	}

	frame, err := encodeFrame(d.Envelope.Topic, wireMessage{
		ID:          d.Envelope.ID,
		Topic:       d.Envelope.Topic,
		LogicalTS:   d.Envelope.LogicalTS,
		Sequence:    d.Envelope.Sequence,
		WallClockMS: d.Envelope.WallClockMS,
		SessionID:   d.Envelope.SessionID,
		Payload:     d.Envelope.Payload,
	})
	if err != nil {
		c.server.log.Warn().Err(err).Str("topic", d.Envelope.Topic).Msg("transport: frame encode failed, dropping envelope")
		return true
	}

	if _, err := c.stream.Write(frame); err != nil {
		return false
	}
	return true
}
