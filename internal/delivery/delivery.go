// Package delivery fans room events out to websocket subscribers.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"room_chat/internal/domain"
)

// Publisher delivers an event to every current subscriber of a room.
// Delivery is best effort and at most once: nothing is stored for
// subscribers that are offline or too slow.
type Publisher interface {
	Publish(ctx context.Context, roomID uuid.UUID, event string, payload interface{}) error
}

// NopPublisher is used by poll deployments, where clients fetch instead.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, uuid.UUID, string, interface{}) error {
	return nil
}

func encodeEvent(roomID uuid.UUID, event string, payload interface{}) ([]byte, error) {
	ev, err := domain.NewEvent(roomID, event, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(ev)
}
