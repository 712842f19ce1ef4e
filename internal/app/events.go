package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/noaide-sh/noaide/internal/bus"
)

// publishEnvelope marshals payload and publishes it on topic, the same
// shape as internal/supervisor/events.go's publishJSON, generalized to
// an arbitrary topic since ingestion publishes on session/messages
// rather than system/events.
func publishEnvelope(ctx context.Context, b bus.Bus, topic string, source bus.Source, sessionID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return // payload types here are always marshalable; guard anyway
	}
	_ = b.Publish(ctx, topic, bus.Envelope{
		ID:          uuid.NewString(),
		Source:      source,
		WallClockMS: time.Now().UnixMilli(),
		SessionID:   sessionID,
		Payload:     data,
	})
}
