package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"room_chat/internal/domain"
	"room_chat/pkg/logger"
)

const (
	roomChannelFormat  = "chat:room:%s:events"
	roomChannelPattern = "chat:room:*:events"
)

// RedisBridge publishes through Redis so that every server instance hears
// every event and hands it to its own hub.
type RedisBridge struct {
	rdb *redis.Client
	hub *Hub
	log logger.Logger
}

func NewRedisBridge(rdb *redis.Client, hub *Hub, log logger.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, hub: hub, log: log}
}

func RoomChannel(roomID uuid.UUID) string {
	return fmt.Sprintf(roomChannelFormat, roomID.String())
}

func (b *RedisBridge) Publish(ctx context.Context, roomID uuid.UUID, event string, payload interface{}) error {
	frame, err := encodeEvent(roomID, event, payload)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, RoomChannel(roomID), frame).Err(); err != nil {
		b.log.Error("Failed to publish event", "error", err, "room_id", roomID, "event", event)
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

// Run relays published events to the local hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	ps := b.rdb.PSubscribe(ctx, roomChannelPattern)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to room events: %w", err)
	}
	b.log.Info("Redis event bridge subscribed", "pattern", roomChannelPattern)

	ch := ps.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(msg)
		}
	}
}

// relay hands a published event to the hub. A subscription confirmation
// after the first one means the connection was re-established and events
// published in between are gone.
func (b *RedisBridge) relay(msg interface{}) {
	switch m := msg.(type) {
	case *redis.Subscription:
		n := b.hub.ReconnectAll("event stream interrupted")
		b.log.Warn("Redis event bridge resubscribed", "pattern", m.Channel, "closed_subscribers", n)
	case *redis.Message:
		var ev domain.Event
		if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
			b.log.Warn("Dropping malformed event", "error", err, "channel", m.Channel)
			return
		}
		b.hub.Dispatch(ev.RoomID, ev.Name, []byte(m.Payload))
	}
}
