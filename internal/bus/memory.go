package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryBus is the in-memory implementation of Bus (spec §4.4). Its
// internals are guarded independently, per spec §5 "Shared resource
// policy": the Lamport clock is a lock-free atomic, the dedup ring has
// its own mutex, and the topic map has its own mutex with a read-mostly
// fast path for Publish/Subscribe lookups.
type MemoryBus struct {
	log zerolog.Logger

	clock uint64 // atomic, spec §4.4 "Atomic 64-bit counter"

	dedup *dedupRing

	topicsMu sync.RWMutex
	topics   map[string]*topicState

	seqMu sync.Mutex
	seq   map[Source]uint64

	closed atomic.Bool
}

type topicState struct {
	cfg  TopicConfig
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	topic  string
	policy Policy
	ch     chan Delivery
	mu     sync.Mutex
	closed bool
	bus    *MemoryBus
	done   chan struct{}
}

func (s *subscriber) C() <-chan Delivery { return s.ch }

func (s *subscriber) Unsubscribe() {
	s.bus.removeSubscriber(s.topic, s)
}

// NewMemoryBus creates a bus with no subscribers and a Lamport clock at 0.
func NewMemoryBus(log zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		log:    log.With().Str("component", "bus").Logger(),
		dedup:  newDedupRing(1000),
		topics: make(map[string]*topicState),
		seq:    make(map[Source]uint64),
	}
}

func (b *MemoryBus) topicStateFor(topic string) *topicState {
	b.topicsMu.RLock()
	ts, ok := b.topics[topic]
	b.topicsMu.RUnlock()
	if ok {
		return ts
	}

	b.topicsMu.Lock()
	defer b.topicsMu.Unlock()
	if ts, ok := b.topics[topic]; ok {
		return ts
	}
	ts = &topicState{cfg: configFor(topic), subs: make(map[*subscriber]struct{})}
	b.topics[topic] = ts
	return ts
}

// LogicalClock returns the current Lamport value without advancing it.
func (b *MemoryBus) LogicalClock() uint64 {
	return atomic.LoadUint64(&b.clock)
}

// Merge implements the standard Lamport receive rule via CAS retry.
func (b *MemoryBus) Merge(remote uint64) uint64 {
	for {
		local := atomic.LoadUint64(&b.clock)
		next := local
		if remote > next {
			next = remote
		}
		next++
		if atomic.CompareAndSwapUint64(&b.clock, local, next) {
			return next
		}
	}
}

func (b *MemoryBus) nextSequence(source Source) uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	b.seq[source]++
	return b.seq[source]
}

// Publish implements Bus.Publish.
func (b *MemoryBus) Publish(ctx context.Context, topic string, env Envelope) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	env.Topic = topic
	env.LogicalTS = atomic.AddUint64(&b.clock, 1)
	env.Sequence = b.nextSequence(env.Source)

	if env.DedupKey != "" && b.dedup.observe(env.DedupKey) {
		// Echo of an already-published input; silently dropped, success
		// returned, per spec §4.4.
		return nil
	}

	ts := b.topicStateFor(topic)
	ts.mu.Lock()
	subs := make([]*subscriber, 0, len(ts.subs))
	for s := range ts.subs {
		subs = append(subs, s)
	}
	policy := ts.cfg.Policy
	ts.mu.Unlock()

	if policy == PolicyNeverDrop {
		var wg sync.WaitGroup
		wg.Add(len(subs))
		for _, s := range subs {
			s := s
			go func() {
				defer wg.Done()
				s.deliverBlocking(ctx, Delivery{Envelope: env})
			}()
		}
		wg.Wait()
		return ctx.Err()
	}

	for _, s := range subs {
		s.deliverDropOldest(Delivery{Envelope: env})
	}
	return nil
}

func (s *subscriber) deliverBlocking(ctx context.Context, d Delivery) {
	select {
	case s.ch <- d:
	case <-s.done:
	case <-ctx.Done():
	}
}

func (s *subscriber) deliverDropOldest(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- d:
		return
	default:
	}

	// Buffer full: evict the oldest and mark the incoming delivery with
	// Missed = 1. The mark travels at the back of the queue, behind the
	// envelopes still buffered, and is lost if that delivery is itself
	// evicted later.
	select {
	case <-s.ch:
	default:
	}
	d.Missed = 1
	select {
	case s.ch <- d:
	default:
		// Lost the race against a concurrent evictor; drop silently
		// rather than block, consistent with drop-oldest semantics.
	}
}

// Subscribe registers a new subscription on topic.
func (b *MemoryBus) Subscribe(topic string) Subscription {
	ts := b.topicStateFor(topic)
	s := &subscriber{
		topic:  topic,
		policy: ts.cfg.Policy,
		ch:     make(chan Delivery, ts.cfg.Capacity),
		bus:    b,
		done:   make(chan struct{}),
	}
	ts.mu.Lock()
	ts.subs[s] = struct{}{}
	ts.mu.Unlock()
	return s
}

func (b *MemoryBus) removeSubscriber(topic string, s *subscriber) {
	ts := b.topicStateFor(topic)
	ts.mu.Lock()
	_, present := ts.subs[s]
	delete(ts.subs, s)
	ts.mu.Unlock()

	if !present {
		return
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
}

// Close tears down every subscription and marks the bus closed.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.topicsMu.Lock()
	defer b.topicsMu.Unlock()
	for _, ts := range b.topics {
		ts.mu.Lock()
		for s := range ts.subs {
			close(s.done)
		}
		ts.subs = make(map[*subscriber]struct{})
		ts.mu.Unlock()
	}
	return nil
}
