package transport

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noaide-sh/noaide/internal/bus"
)

func TestEncodeDecodeFrame_RoundTrip(t *testing.T) {
	msg := wireMessage{
		ID:          "evt-1",
		Topic:       bus.TopicSessionMessages,
		LogicalTS:   42,
		Sequence:    7,
		WallClockMS: 1_700_000_000_000,
		SessionID:   "sess-1",
		Payload:     []byte(`{"role":"user","text":"hi"}`),
	}

	frame, err := encodeFrame(bus.TopicSessionMessages, msg)
	require.NoError(t, err)

	topic, decoded, err := decodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, bus.TopicSessionMessages, topic)
	assert.Equal(t, msg, decoded)
}

func TestEncodeFrame_RejectsOversizedTopic(t *testing.T) {
	huge := make([]byte, 1<<16)
	_, err := encodeFrame(string(huge), wireMessage{Topic: string(huge)})
	assert.Error(t, err)
}

func TestDecodeFrame_RejectsUnknownCodec(t *testing.T) {
	frame, err := encodeFrame(bus.TopicSystemEvents, wireMessage{Topic: bus.TopicSystemEvents})
	require.NoError(t, err)

	// Corrupt the codec_id byte: 2 bytes topic_length + len(topic).
	frame[2+len(bus.TopicSystemEvents)] = 0xFF
	_, _, err = decodeFrame(frame)
	assert.Error(t, err)
}

func TestIsHotTopic(t *testing.T) {
	assert.True(t, isHotTopic(bus.TopicSessionMessages))
	assert.True(t, isHotTopic(bus.TopicFilesChanges))
	assert.False(t, isHotTopic(bus.TopicSystemEvents))
	assert.False(t, isHotTopic(bus.TopicAPIRequests))
}

func TestTierForRTT_Boundaries(t *testing.T) {
	assert.Equal(t, TierFull, tierForRTT(49*time.Millisecond))
	assert.Equal(t, TierBatched, tierForRTT(50*time.Millisecond))
	assert.Equal(t, TierBatched, tierForRTT(150*time.Millisecond))
	assert.Equal(t, TierCritical, tierForRTT(151*time.Millisecond))
}

func TestTierTracker_StartsFull(t *testing.T) {
	tr := newTierTracker()
	assert.Equal(t, TierFull, tr.Current())
}

func TestTierTracker_RequiresThreeConsecutiveSamplesToSwitch(t *testing.T) {
	tr := newTierTracker()

	assert.Equal(t, TierFull, tr.Observe(200*time.Millisecond))
	assert.Equal(t, TierFull, tr.Observe(200*time.Millisecond))
	// Third consecutive Critical sample flips the tier.
	assert.Equal(t, TierCritical, tr.Observe(200*time.Millisecond))
}

func TestTierTracker_InterruptingSampleResetsStreak(t *testing.T) {
	tr := newTierTracker()

	assert.Equal(t, TierFull, tr.Observe(200*time.Millisecond)) // candidate=Critical, streak=1
	assert.Equal(t, TierFull, tr.Observe(200*time.Millisecond)) // streak=2
	// A Full sample interrupts the streak before it reaches 3.
	assert.Equal(t, TierFull, tr.Observe(10*time.Millisecond))
	assert.Equal(t, TierFull, tr.Observe(200*time.Millisecond)) // streak restarts at 1
	assert.Equal(t, TierFull, tr.Observe(200*time.Millisecond)) // streak=2
	assert.Equal(t, TierCritical, tr.Observe(200*time.Millisecond))
}

func TestTierTracker_PerSampleClassificationNotWindowAverage(t *testing.T) {
	tr := newTierTracker()

	// Only 3 Critical samples land, well short of the 10-sample window
	// filling up — hysteresis alone flips the tier, proof the decision
	// isn't waiting on a window average.
	for i := 0; i < 3; i++ {
		tr.Observe(500 * time.Millisecond)
	}
	assert.Equal(t, TierCritical, tr.Current())
}

func TestTierTracker_AverageRTT(t *testing.T) {
	tr := newTierTracker()
	tr.Observe(10 * time.Millisecond)
	tr.Observe(20 * time.Millisecond)
	tr.Observe(30 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, tr.AverageRTT())
}

func TestTier_AllowsTopic_NeverDropsHotSessionTopics(t *testing.T) {
	for _, tier := range []Tier{TierFull, TierBatched, TierCritical} {
		assert.True(t, tier.allowsTopic(bus.TopicSessionMessages), "tier=%s", tier)
		assert.True(t, tier.allowsTopic(bus.TopicSystemEvents), "tier=%s", tier)
	}
}

func TestTier_AllowsTopic_CriticalDropsEverythingElse(t *testing.T) {
	assert.True(t, TierFull.allowsTopic(bus.TopicFilesChanges))
	assert.True(t, TierBatched.allowsTopic(bus.TopicFilesChanges))
	assert.False(t, TierCritical.allowsTopic(bus.TopicFilesChanges))
}

func TestReplayRing_SnapshotOrderAndEviction(t *testing.T) {
	ring := newReplayRing(3)
	for i := uint64(1); i <= 5; i++ {
		ring.Add(replayFrame{Topic: bus.TopicSystemEvents, LogicalTS: i})
	}

	snap := ring.Snapshot()
	require.Len(t, snap, 3)
	// Capacity 3, 5 inserts: only logical timestamps 3,4,5 survive, oldest first.
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{snap[0].LogicalTS, snap[1].LogicalTS, snap[2].LogicalTS})
}

func TestReplayRing_EventsSince(t *testing.T) {
	ring := newReplayRing(10)
	for i := uint64(1); i <= 5; i++ {
		ring.Add(replayFrame{Topic: bus.TopicSystemEvents, LogicalTS: i})
	}

	since := ring.EventsSince(3)
	require.Len(t, since, 2)
	assert.Equal(t, uint64(4), since[0].LogicalTS)
	assert.Equal(t, uint64(5), since[1].LogicalTS)
}

func TestReplayRing_EmptyRingSnapshot(t *testing.T) {
	ring := newReplayRing(10)
	assert.Empty(t, ring.Snapshot())
	assert.Empty(t, ring.EventsSince(0))
}

func TestLoadOrGenerateCert_SelfSigned(t *testing.T) {
	cert, digest, err := LoadOrGenerateCert(CertConfig{})
	require.NoError(t, err)
	require.NotEmpty(t, digest)
	require.Len(t, cert.Certificate, 1)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "noaide-local", leaf.Subject.CommonName)
	assert.True(t, leaf.NotAfter.After(time.Now()))
}

func TestLoadOrGenerateCert_RejectsOneSidedPaths(t *testing.T) {
	_, _, err := LoadOrGenerateCert(CertConfig{CertPath: "/tmp/does-not-matter.pem"})
	assert.Error(t, err)
}

func TestLoadOrGenerateCert_MissingFiles(t *testing.T) {
	_, _, err := LoadOrGenerateCert(CertConfig{CertPath: "/tmp/noaide-missing-cert.pem", KeyPath: "/tmp/noaide-missing-key.pem"})
	assert.Error(t, err)
}
