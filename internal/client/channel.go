package client

import (
	"context"

	"github.com/google/uuid"

	"room_chat/internal/domain"
)

type ConnectionState int

const (
	Connecting ConnectionState = iota
	Connected
	// Disconnected persists until a later fetch or subscription succeeds.
	Disconnected
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "connecting"
	}
}

// Sink receives what a DeliveryChannel learns about one room.
type Sink interface {
	// Deliver merges pushed messages. Duplicates are ignored.
	Deliver(msgs ...*domain.Message)
	// Resync fetches everything after the newest held message.
	Resync(ctx context.Context) error
	SetConnectionState(state ConnectionState, err error)
}

// DeliveryChannel keeps a room fresh until ctx ends. Run returns nil when
// ctx is cancelled and an error when the failure cannot be retried.
type DeliveryChannel interface {
	Run(ctx context.Context, roomID uuid.UUID, sink Sink) error
}
