package supervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/noaide-sh/noaide/internal/bus"
)

// outputEvent is the payload of an Output(String) event, published on
// system/events as each read or parsed message arrives.
type outputEvent struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// stateChangeEvent is the payload published whenever a session's state
// actually changes (never on no-op transitions).
type stateChangeEvent struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

func publishJSON(ctx context.Context, b bus.Bus, source bus.Source, sessionID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return // payload types here are always marshalable; guard anyway
	}
	_ = b.Publish(ctx, bus.TopicSystemEvents, bus.Envelope{
		ID:          uuid.NewString(),
		Source:      source,
		WallClockMS: time.Now().UnixMilli(),
		SessionID:   sessionID,
		Payload:     data,
	})
}
