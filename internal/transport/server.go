package transport

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/bus"
)

// knownTopics is the fixed topic set every connection subscribes to on
// accept, per spec §4.5 "subscribes to every known topic".
var knownTopics = []string{
	bus.TopicSessionMessages,
	bus.TopicFilesChanges,
	bus.TopicSystemEvents,
	bus.TopicTasksUpdates,
	bus.TopicAgentsMetrics,
	bus.TopicAPIRequests,
}

// Server binds a UDP endpoint and accepts WebTransport sessions,
// streaming bus envelopes to each connected client (spec §4.5).
type Server struct {
	log zerolog.Logger
	bus bus.Bus

	wt          webtransport.Server
	certDigest  string
	ring        *replayRing
	rtt         *rttRegistry
	activeConns atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer constructs a Server bound to addr (e.g. ":4433"), using
// cfg's certificate (self-signed if both paths are empty).
func NewServer(addr string, cfg CertConfig, b bus.Bus, log zerolog.Logger) (*Server, error) {
	cert, digest, err := LoadOrGenerateCert(cfg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s := &Server{
		log:        log.With().Str("component", "transport").Logger(),
		bus:        b,
		certDigest: digest,
		ring:       newReplayRing(1000),
		rtt:        newRTTRegistry(),
		closed:     make(chan struct{}),
	}

	h3Server := &http3.Server{
		Addr:      addr,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		QUICConfig: &quic.Config{
			Tracer: s.rtt.tracer(),
		},
	}
	s.wt = webtransport.Server{
		H3:          *h3Server,
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.wt.Upgrade(w, r)
		if err != nil {
			s.log.Warn().Err(err).Msg("transport: webtransport upgrade failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		go s.handleSession(sess)
	})
	s.wt.H3.Handler = mux

	go s.recordReplay()

	return s, nil
}

// recordReplay subscribes to every known topic independent of any
// client connection and encodes every published envelope into s.ring,
// so a client connecting after an envelope was published still sees it
// in drainReplay (spec §4.5 "captures every successfully encoded
// frame", spec §8 scenario 6). It runs for the server's whole lifetime,
// not per-connection, and exits once Close tears the bus subscriptions
// down via the closed channel.
func (s *Server) recordReplay() {
	subs := make([]bus.Subscription, 0, len(knownTopics))
	for _, topic := range knownTopics {
		subs = append(subs, s.bus.Subscribe(topic))
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	ch := make(chan bus.Delivery, 64)
	for _, sub := range subs {
		sub := sub
		go func() {
			for {
				select {
				case d := <-sub.C():
					select {
					case ch <- d:
					case <-s.closed:
						return
					}
				case <-s.closed:
					return
				}
			}
		}()
	}

	for {
		select {
		case <-s.closed:
			return
		case d := <-ch:
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
				s.log.Warn().Err(err).Str("topic", d.Envelope.Topic).Msg("transport: frame encode failed, dropping envelope")
				continue
			}
			s.ring.Add(replayFrame{Topic: d.Envelope.Topic, LogicalTS: d.Envelope.LogicalTS, Frame: frame})
		}
	}
}

// CertDigest returns the SHA-256 hex digest of the self-signed leaf
// certificate, or "" for CA-signed operation.
func (s *Server) CertDigest() string { return s.certDigest }

// ActiveConnections returns the current connection count.
func (s *Server) ActiveConnections() int64 { return s.activeConns.Load() }

// ListenAndServe blocks serving QUIC/WebTransport until Close is called.
func (s *Server) ListenAndServe() error {
	if err := s.wt.ListenAndServe(); err != nil {
		select {
		case <-s.closed:
			return nil // expected: Close() tore the listener down
		default:
			return fmt.Errorf("transport: serve: %w", err)
		}
	}
	return nil
}

// Close shuts the transport endpoint down; every pending accept fails
// and every handler's closed-tick branch fires (spec §5).
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.wt.Close()
	})
	return err
}

// handleSession runs one connection's lifecycle: subscribe to every
// topic, drain the replay buffer, then alternate RTT/envelope/closed
// ticks (spec §4.5).
func (s *Server) handleSession(sess *webtransport.Session) {
	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	stream, err := sess.OpenUniStream()
	if err != nil {
		s.log.Warn().Err(err).Msg("transport: open server-initiated stream failed")
		return
	}
	defer stream.Close()

	conn := &connection{
		server: s,
		sess:   sess,
		stream: stream,
		tier:   newTierTracker(),
	}
	conn.run()
}
