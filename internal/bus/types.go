// Package bus implements the pub/sub event fabric described in spec §4.4.
//
// The bus assigns a Lamport timestamp and a per-source sequence number to
// every envelope at publish time, deduplicates echoed input against a
// bounded ring of recent keys, and applies per-topic backpressure: some
// topics never drop (the publisher blocks instead), others drop the
// oldest buffered envelope for a lagging subscriber and tell it how many
// it missed.
package bus

import "context"

// Source identifies which producer generated an envelope.
type Source string

const (
	SourceJsonl   Source = "jsonl"
	SourcePty     Source = "pty"
	SourceProxy   Source = "proxy"
	SourceWatcher Source = "watcher"
	SourceUser    Source = "user"
)

// Topic names. Anything not in this list is treated as "other" for
// backpressure purposes (256 capacity, drop oldest).
const (
	TopicSessionMessages = "session/messages"
	TopicFilesChanges    = "files/changes"
	TopicSystemEvents    = "system/events"
	TopicTasksUpdates    = "tasks/updates"
	TopicAgentsMetrics   = "agents/metrics"
	TopicAPIRequests     = "api/requests"
)

// Envelope is the bus-internal wrapper described in spec §3. Fields
// Sequence and LogicalTS are assigned (and any caller-supplied value
// overwritten) by Publish.
type Envelope struct {
	ID          string
	Topic       string
	Source      Source
	Sequence    uint64
	LogicalTS   uint64
	WallClockMS int64
	SessionID   string // optional
	DedupKey    string // optional
	Payload     []byte // opaque, codec-agnostic
}

// Policy describes how a topic behaves under backpressure.
type Policy int

const (
	// PolicyDropOldest evicts the oldest buffered envelope for a lagging
	// subscriber, making room for the new one, and tells the subscriber
	// how many it missed.
	PolicyDropOldest Policy = iota
	// PolicyNeverDrop makes Publish block until every subscriber has
	// room, rather than lose an envelope.
	PolicyNeverDrop
)

// TopicConfig is the capacity/policy pair from spec §4.4's table.
type TopicConfig struct {
	Capacity int
	Policy   Policy
}

// defaultTopics mirrors the table in spec §4.4.
var defaultTopics = map[string]TopicConfig{
	TopicSessionMessages: {Capacity: 10000, Policy: PolicyNeverDrop},
	TopicFilesChanges:    {Capacity: 500, Policy: PolicyDropOldest},
	TopicSystemEvents:    {Capacity: 100, Policy: PolicyDropOldest},
	TopicTasksUpdates:    {Capacity: 500, Policy: PolicyDropOldest},
	TopicAgentsMetrics:   {Capacity: 200, Policy: PolicyDropOldest},
	TopicAPIRequests:     {Capacity: 1000, Policy: PolicyDropOldest},
}

// otherTopicConfig is used for any topic name not in defaultTopics.
var otherTopicConfig = TopicConfig{Capacity: 256, Policy: PolicyDropOldest}

func configFor(topic string) TopicConfig {
	if cfg, ok := defaultTopics[topic]; ok {
		return cfg
	}
	return otherTopicConfig
}

// Delivery is what a subscriber receives: an envelope, with Missed > 0
// when the subscriber fell behind on a drop-oldest topic. Missed is set
// to 1 on the envelope whose arrival forced an eviction; it is not a
// running count of dropped envelopes, and the envelopes still buffered
// ahead of it are delivered before it.
type Delivery struct {
	Envelope Envelope
	Missed   int
}

// Subscription is a live feed of deliveries for one subscriber on one
// topic. Dropping/closing it (via Unsubscribe or Bus.Close) unregisters
// it immediately.
type Subscription interface {
	// C returns the channel of deliveries. The channel is never closed;
	// after Unsubscribe or Bus.Close no further deliveries arrive on it.
	C() <-chan Delivery
	// Unsubscribe stops the feed and releases its buffer.
	Unsubscribe()
}

// Bus is the core event pub/sub system (spec §4.4).
type Bus interface {
	// Publish assigns LogicalTS and Sequence (for Envelope.Source),
	// applies dedup, and fans the envelope out to every subscriber of
	// its topic. Blocks if the topic's policy is PolicyNeverDrop and a
	// subscriber's buffer is full; returns early if ctx is canceled
	// first.
	Publish(ctx context.Context, topic string, env Envelope) error
	// Subscribe registers a new subscription on topic.
	Subscribe(topic string) Subscription
	// LogicalClock returns the current value of the Lamport counter
	// without advancing it.
	LogicalClock() uint64
	// Merge folds in a remote Lamport timestamp per the standard
	// Lamport rule (local = max(local, remote) + 1). Not exercised by
	// this single-process core today; kept for the extensibility spec
	// §4.4 calls out.
	Merge(remote uint64) uint64
	// Close tears down every subscription and stops accepting publishes.
	Close() error
}
