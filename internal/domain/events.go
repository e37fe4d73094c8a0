package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Events fanned out on a room topic.
const (
	EventMessageSent  = "message.sent"
	// EventFileAttached carries the message again once its attachment is stored.
	EventFileAttached = "message.file_attached"
	EventMemberJoined = "member.joined"
	EventMemberLeft   = "member.left"
	EventRoomDeleted  = "room.deleted"

	EventSubscriptionSucceeded = "subscription.succeeded"
	EventSubscriptionError     = "subscription.error"
	EventPresenceJoining       = "presence.joining"
	EventPresenceLeaving       = "presence.leaving"

	// EventAccessRevoked is consumed by the hub and never written to a
	// subscriber. It travels on the room topic so every instance applies it.
	EventAccessRevoked = "access.revoked"
)

// Event is the envelope written to subscribers.
type Event struct {
	Name   string          `json:"event"`
	RoomID uuid.UUID       `json:"room_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func NewEvent(roomID uuid.UUID, name string, payload interface{}) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return &Event{Name: name, RoomID: roomID, Data: data}, nil
}

// PresenceMember is one live subscription to a room topic.
type PresenceMember struct {
	ConnectionID string    `json:"connection_id"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	IsGuest      bool      `json:"is_guest"`
	Since        time.Time `json:"since"`
}

type SubscriptionError struct {
	Status  int    `json:"status"`
	Message string `json:"error"`
}

// AccessRevoked ends subscriptions that no longer pass authorization. A nil
// UserID asks every subscriber of the room to authorize again.
type AccessRevoked struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Reason string     `json:"reason"`
}
