package delivery

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	nanoid "github.com/jaevor/go-nanoid"

	"room_chat/internal/domain"
	"room_chat/pkg/logger"
)

var errSubscriberClosed = errors.New("subscriber closed or queue full")

// newConnectionID yields the url-safe ids that name a connection in
// presence lists and logs.
var newConnectionID = func() func() string {
	gen, err := nanoid.Standard(21)
	if err != nil {
		panic(err)
	}
	return gen
}()

type SubscriberConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

func (c SubscriberConfig) withDefaults() SubscriberConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512
	}
	return c
}

// Subscriber is one websocket connection subscribed to one room topic.
// Frames only flow from server to client; anything the client sends apart
// from control frames is read and dropped.
type Subscriber struct {
	ID       string
	RoomID   uuid.UUID
	Identity domain.Identity
	Since    time.Time

	conn *websocket.Conn
	send chan []byte
	cfg  SubscriberConfig
	log  logger.Logger

	closeOnce sync.Once
	done      chan struct{}
	closeCode int
	closeText string
}

func NewSubscriber(conn *websocket.Conn, roomID uuid.UUID, identity domain.Identity, cfg SubscriberConfig, log logger.Logger) *Subscriber {
	cfg = cfg.withDefaults()
	id := newConnectionID()
	return &Subscriber{
		ID:        id,
		RoomID:    roomID,
		Identity:  identity,
		Since:     time.Now().UTC(),
		conn:      conn,
		send:      make(chan []byte, cfg.SendBuffer),
		cfg:       cfg,
		log:       log.With("connection_id", id, "room_id", roomID),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (s *Subscriber) Presence() domain.PresenceMember {
	return domain.PresenceMember{
		ConnectionID: s.ID,
		UserID:       s.Identity.ID,
		Name:         s.Identity.DisplayName,
		IsGuest:      s.Identity.IsGuest,
		Since:        s.Since,
	}
}

// Enqueue never blocks. It reports false when the queue is full or the
// subscriber is closed.
func (s *Subscriber) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// SendEvent queues an event for this subscriber alone, used for the
// subscription handshake.
func (s *Subscriber) SendEvent(event string, payload interface{}) error {
	frame, err := encodeEvent(s.RoomID, event, payload)
	if err != nil {
		return err
	}
	if !s.Enqueue(frame) {
		return errSubscriberClosed
	}
	return nil
}

// Close asks the write pump to flush what is queued, send a close frame
// with code and stop.
func (s *Subscriber) Close(code int, text string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeText = text
		close(s.done)
	})
}

func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// ReadPump keeps the read side alive for pong handling and returns when the
// connection fails or is closed.
func (s *Subscriber) ReadPump() {
	defer s.Close(websocket.CloseNormalClosure, "")

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Subscriber read failed", "error", err)
			}
			return
		}
	}
}

func (s *Subscriber) WritePump() {
	ticker := time.NewTicker(s.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-s.done:
			s.flush()
			msg := websocket.FormatCloseMessage(s.closeCode, s.closeText)
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
			return
		}
	}
}

func (s *Subscriber) flush() {
	for {
		select {
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Subscriber) write(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	return s.conn.WriteMessage(messageType, data)
}
