package bus

import "strings"

// PatternMatcher matches topic names against simple glob-style patterns.
//
// Adapted from the teacher's internal/events/pattern.go, which used this
// to match event types against subscription patterns. Here it backs
// MatchingTopics, which expands a pattern into the matching known
// topics; the bus's Subscribe itself takes one exact topic.
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher { return &PatternMatcher{} }

// Match reports whether topic matches pattern. Patterns support a
// trailing or leading "*" wildcard segment ("session/*", "*/changes")
// or the bare "*" for everything; anything else is an exact match.
func (pm *PatternMatcher) Match(topic, pattern string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*/") {
		return strings.HasSuffix(topic, strings.TrimPrefix(pattern, "*"))
	}
	return false
}

// KnownTopics lists the topics with explicit backpressure policies in
// spec §4.4's table, in the order a newly connected transport client
// should subscribe to them.
func KnownTopics() []string {
	return []string{
		TopicSessionMessages,
		TopicFilesChanges,
		TopicSystemEvents,
		TopicTasksUpdates,
		TopicAgentsMetrics,
		TopicAPIRequests,
	}
}

// MatchingTopics returns every known topic matching pattern.
func MatchingTopics(pattern string) []string {
	pm := NewPatternMatcher()
	var out []string
	for _, t := range KnownTopics() {
		if pm.Match(t, pattern) {
			out = append(out, t)
		}
	}
	return out
}
