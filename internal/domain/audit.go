package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID          int64                  `json:"id"`
	EventTime   time.Time              `json:"event_time"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	ActorRole   string                 `json:"actor_role"`
	RoomID      *uuid.UUID             `json:"room_id,omitempty"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
}

const (
	ActorRoleUser   = "user"
	ActorRoleGuest  = "guest"
	ActorRoleSystem = "system"
)

const (
	EventTypeRoomCreated   = "ROOM_CREATED"
	EventTypeRoomUpdated   = "ROOM_UPDATED"
	EventTypeRoomDeleted   = "ROOM_DELETED"
	EventTypeRoomJoined    = "ROOM_JOINED"
	EventTypeRoomLeft      = "ROOM_LEFT"
	EventTypeFileUploaded  = "FILE_UPLOADED"
	EventTypeGuestUpgraded = "GUEST_UPGRADED"
)

func ActorRoleOf(id Identity) string {
	if id.IsGuest {
		return ActorRoleGuest
	}
	return ActorRoleUser
}
