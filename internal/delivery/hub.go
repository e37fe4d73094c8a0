package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"room_chat/internal/domain"
	"room_chat/pkg/logger"
)

// Hub keeps the subscribers connected to this process, grouped by room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Subscriber]struct{}
	log   logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]map[*Subscriber]struct{}),
		log:   log,
	}
}

func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[s.RoomID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.rooms[s.RoomID] = subs
	}
	subs[s] = struct{}{}
	h.log.Debug("Subscriber registered", "room_id", s.RoomID, "connection_id", s.ID, "subscribers", len(subs))
}

// Unregister reports whether s was still registered.
func (h *Hub) Unregister(s *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remove(s)
}

func (h *Hub) remove(s *Subscriber) bool {
	subs, ok := h.rooms[s.RoomID]
	if !ok {
		return false
	}
	if _, ok := subs[s]; !ok {
		return false
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.rooms, s.RoomID)
	}
	return true
}

// Publish implements Publisher for a single instance.
func (h *Hub) Publish(_ context.Context, roomID uuid.UUID, event string, payload interface{}) error {
	frame, err := encodeEvent(roomID, event, payload)
	if err != nil {
		return err
	}
	h.Dispatch(roomID, event, frame)
	return nil
}

// Dispatch broadcasts an encoded event and applies its side effects on the
// local subscribers.
func (h *Hub) Dispatch(roomID uuid.UUID, event string, frame []byte) {
	switch event {
	case domain.EventAccessRevoked:
		h.revoke(roomID, frame)
	case domain.EventRoomDeleted:
		h.Broadcast(roomID, frame)
		h.CloseRoom(roomID)
	default:
		h.Broadcast(roomID, frame)
	}
}

func (h *Hub) revoke(roomID uuid.UUID, frame []byte) {
	var ev domain.Event
	var revoked domain.AccessRevoked
	if err := json.Unmarshal(frame, &ev); err != nil || json.Unmarshal(ev.Data, &revoked) != nil {
		h.log.Warn("Dropping malformed access revocation", "room_id", roomID)
		return
	}
	if revoked.UserID == nil {
		h.Reauthorize(roomID, revoked.Reason)
		return
	}
	h.Kick(roomID, *revoked.UserID, revoked.Reason)
}

// Kick ends every subscription userID holds on the room with a 403
// subscription.error. It returns how many were closed.
func (h *Hub) Kick(roomID, userID uuid.UUID, reason string) int {
	h.mu.Lock()
	var kicked []*Subscriber
	for s := range h.rooms[roomID] {
		if s.Identity.ID == userID {
			kicked = append(kicked, s)
		}
	}
	for _, s := range kicked {
		h.remove(s)
	}
	h.mu.Unlock()

	for _, s := range kicked {
		h.log.Info("Revoking subscription", "room_id", roomID, "connection_id", s.ID, "user_id", userID)
		_ = s.SendEvent(domain.EventSubscriptionError, domain.SubscriptionError{Status: http.StatusForbidden, Message: reason})
		s.Close(websocket.ClosePolicyViolation, reason)
	}
	return len(kicked)
}

// Reauthorize closes every subscriber of the room with a retryable code.
// Clients reconnect and pass authorization again, or are refused.
func (h *Hub) Reauthorize(roomID uuid.UUID, reason string) int {
	h.mu.Lock()
	subs := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for s := range subs {
		s.Close(websocket.CloseTryAgainLater, reason)
	}
	return len(subs)
}

// Broadcast queues frame on every subscriber of the room. A subscriber
// whose queue is full is dropped; it will resync when it reconnects.
func (h *Hub) Broadcast(roomID uuid.UUID, frame []byte) int {
	h.mu.RLock()
	var slow []*Subscriber
	delivered := 0
	for s := range h.rooms[roomID] {
		if s.Enqueue(frame) {
			delivered++
		} else {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, s := range slow {
			h.remove(s)
		}
		h.mu.Unlock()
		for _, s := range slow {
			h.log.Warn("Dropping slow subscriber", "room_id", roomID, "connection_id", s.ID)
			s.Close(websocket.CloseTryAgainLater, "subscriber too slow")
		}
	}
	return delivered
}

func (h *Hub) Count(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// CloseRoom disconnects every subscriber of a room, used once it is deleted.
func (h *Hub) CloseRoom(roomID uuid.UUID) {
	h.mu.Lock()
	subs := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for s := range subs {
		s.Close(websocket.CloseNormalClosure, "room deleted")
	}
}

// Shutdown disconnects every subscriber.
func (h *Hub) Shutdown() {
	h.closeAll(websocket.CloseGoingAway, "server shutting down")
}

// ReconnectAll closes every subscriber with a retryable code so clients
// subscribe again and resync whatever this process may have missed.
func (h *Hub) ReconnectAll(reason string) int {
	return h.closeAll(websocket.CloseTryAgainLater, reason)
}

func (h *Hub) closeAll(code int, reason string) int {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uuid.UUID]map[*Subscriber]struct{})
	h.mu.Unlock()

	n := 0
	for _, subs := range rooms {
		for s := range subs {
			s.Close(code, reason)
			n++
		}
	}
	return n
}
