package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// ErrStale is returned for results that belong to a room view that has
// since been closed or replaced. They are never applied.
var ErrStale = errors.New("result belongs to a closed room view")

// Backend is the part of the API the controller needs.
type Backend interface {
	FetchPage(ctx context.Context, roomID uuid.UUID, cursor *domain.Cursor, limit int, dir domain.Direction) (*domain.Page, error)
	SendMessage(ctx context.Context, roomID uuid.UUID, req SendRequest) (*domain.Message, error)
}

// Notifier is where user-visible outcomes go. Only the Controller calls it,
// possibly from the delivery goroutine, so implementations must not call
// Controller.Close synchronously.
type Notifier interface {
	MessagesChanged(roomID uuid.UUID, msgs []*domain.Message)
	ConnectionChanged(roomID uuid.UUID, state ConnectionState, err error)
	// Error reports a failure to show inline, such as a rejected send.
	Error(roomID uuid.UUID, err error)
}

type NopNotifier struct{}

func (NopNotifier) MessagesChanged(uuid.UUID, []*domain.Message)         {}
func (NopNotifier) ConnectionChanged(uuid.UUID, ConnectionState, error) {}
func (NopNotifier) Error(uuid.UUID, error)                              {}

// DefaultResyncOverlap is how far behind the newest held message a resync
// starts reading.
const DefaultResyncOverlap = 2 * time.Second

type ControllerConfig struct {
	PageSize         int
	MaxMessageLength int
	// ResyncOverlap re-reads this much history before the newest held
	// message on every resync; the list drops the repeats. The server
	// stamps created_at before the insert commits, so two concurrent
	// appends to one room can become visible out of timestamp order even
	// on a single instance. Zero means DefaultResyncOverlap and a negative
	// value resumes exactly at the newest held message.
	ResyncOverlap time.Duration
}

// Controller owns the rendered message list of the open room. Every
// mutation happens under mu, and every asynchronous result carries the
// generation it was started for so results from a closed view are dropped.
type Controller struct {
	backend  Backend
	channel  DeliveryChannel
	session  *Session
	notifier Notifier
	cfg      ControllerConfig
	log      logger.Logger

	mu       sync.Mutex
	gen      uint64
	roomID   uuid.UUID
	list     *MessageList
	hasOlder bool
	state    ConnectionState
	pending  int
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewController(backend Backend, channel DeliveryChannel, session *Session, notifier Notifier, cfg ControllerConfig, log logger.Logger) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 1000
	}
	if cfg.ResyncOverlap == 0 {
		cfg.ResyncOverlap = DefaultResyncOverlap
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Controller{
		backend:  backend,
		channel:  channel,
		session:  session,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		list:     NewMessageList(),
		state:    Disconnected,
	}
}

// Open loads the newest page of a room, replacing whatever was shown, and
// starts the delivery channel.
func (c *Controller) Open(ctx context.Context, roomID uuid.UUID) error {
	c.Close()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.roomID = roomID
	c.list = NewMessageList()
	c.hasOlder = false
	c.state = Connecting
	c.mu.Unlock()

	page, err := c.backend.FetchPage(ctx, roomID, nil, c.cfg.PageSize, domain.DirectionOlder)
	if err != nil {
		c.setState(gen, Disconnected, err)
		c.fail(gen, err)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrStale
	}
	for _, m := range page.Messages {
		c.list.Insert(m)
	}
	c.hasOlder = page.HasMore
	snapshot := c.list.Snapshot()

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.notifier.MessagesChanged(roomID, snapshot)

	sink := &generationSink{c: c, gen: gen}
	go func() {
		defer close(done)
		if err := c.channel.Run(runCtx, roomID, sink); err != nil {
			c.fail(gen, err)
		}
	}()
	return nil
}

// Close stops the delivery channel and returns once it has stopped.
// Anything still in flight for the old view is discarded when it lands.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.state = Disconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Controller) RoomID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Controller) Messages() []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Snapshot()
}

func (c *Controller) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cursor is the live-tail position: the newest held message.
func (c *Controller) Cursor() *domain.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tailCursor()
}

func (c *Controller) tailCursor() *domain.Cursor {
	last := c.list.Last()
	if last == nil {
		return nil
	}
	cur := last.Cursor()
	return &cur
}

func (c *Controller) HasOlder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasOlder
}

func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// OnIncomingMessage merges a message from any source into the open room.
func (c *Controller) OnIncomingMessage(msg *domain.Message) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.apply(gen, msg)
}

func (c *Controller) apply(gen uint64, msgs ...*domain.Message) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	changed := false
	for _, m := range msgs {
		if m == nil || m.RoomID != c.roomID {
			continue
		}
		if c.list.Upsert(m) {
			changed = true
		}
	}
	roomID := c.roomID
	var snapshot []*domain.Message
	if changed {
		snapshot = c.list.Snapshot()
	}
	c.mu.Unlock()

	if changed {
		c.notifier.MessagesChanged(roomID, snapshot)
	}
	return true
}

// SendMessage validates locally, sends, and renders the message from the
// server's echo. Nothing is shown before the server assigns id and time.
func (c *Controller) SendMessage(ctx context.Context, body string) (*domain.Message, error) {
	return c.Send(ctx, SendRequest{Body: body})
}

func (c *Controller) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		return nil, apperrors.Validation("message", "must not be empty")
	}
	if utf8.RuneCountInString(req.Body) > c.cfg.MaxMessageLength {
		return nil, apperrors.Validation("message", fmt.Sprintf("must be at most %d characters", c.cfg.MaxMessageLength))
	}

	c.mu.Lock()
	gen, roomID := c.gen, c.roomID
	c.pending++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending--
		c.mu.Unlock()
	}()

	msg, err := c.backend.SendMessage(ctx, roomID, req)
	if err != nil {
		c.fail(gen, err)
		return nil, err
	}
	if !c.apply(gen, msg) {
		return msg, ErrStale
	}
	return msg, nil
}

// LoadOlder prepends the page before the oldest held message and reports
// how many messages were added.
func (c *Controller) LoadOlder(ctx context.Context) (int, error) {
	c.mu.Lock()
	gen, roomID := c.gen, c.roomID
	first := c.list.First()
	if !c.hasOlder || first == nil {
		c.mu.Unlock()
		return 0, nil
	}
	cursor := first.Cursor()
	c.mu.Unlock()

	page, err := c.backend.FetchPage(ctx, roomID, &cursor, c.cfg.PageSize, domain.DirectionOlder)
	if err != nil {
		c.fail(gen, err)
		return 0, err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return 0, ErrStale
	}
	added := 0
	for _, m := range page.Messages {
		if c.list.Insert(m) {
			added++
		}
	}
	c.hasOlder = page.HasMore
	snapshot := c.list.Snapshot()
	c.mu.Unlock()

	if added > 0 {
		c.notifier.MessagesChanged(roomID, snapshot)
	}
	return added, nil
}

// Resync fetches forward from the newest held message until the server
// reports nothing more. An empty page leaves the cursor where it was.
func (c *Controller) Resync(ctx context.Context) error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.resync(ctx, gen)
}

func (c *Controller) resync(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrStale
	}
	roomID := c.roomID
	cursor := c.tailCursor()
	c.mu.Unlock()

	if cursor != nil && c.cfg.ResyncOverlap > 0 {
		cursor = &domain.Cursor{Timestamp: cursor.Timestamp.Add(-c.cfg.ResyncOverlap)}
	}

	for {
		page, err := c.backend.FetchPage(ctx, roomID, cursor, c.cfg.PageSize, domain.DirectionNewer)
		if err != nil {
			return err
		}
		if !c.apply(gen, page.Messages...) {
			return ErrStale
		}
		if !page.HasMore || len(page.Messages) == 0 {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (c *Controller) setState(gen uint64, state ConnectionState, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = state
	roomID := c.roomID
	c.mu.Unlock()

	c.notifier.ConnectionChanged(roomID, state, err)
}

// fail decides what the user sees for err. An unauthenticated error ends
// the session; everything else is reported inline.
func (c *Controller) fail(gen uint64, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrStale) {
		return
	}

	c.mu.Lock()
	stale := gen != c.gen
	roomID := c.roomID
	c.mu.Unlock()
	if stale {
		return
	}

	if errors.Is(err, apperrors.ErrUnauthenticated) {
		if c.session != nil && c.session.Expire() {
			c.log.Info("Session expired", "room_id", roomID)
		}
		return
	}
	c.notifier.Error(roomID, err)
}

// generationSink binds a delivery channel to the view it was started for.
type generationSink struct {
	c   *Controller
	gen uint64
}

func (s *generationSink) Deliver(msgs ...*domain.Message) {
	s.c.apply(s.gen, msgs...)
}

func (s *generationSink) Resync(ctx context.Context) error {
	return s.c.resync(ctx, s.gen)
}

func (s *generationSink) SetConnectionState(state ConnectionState, err error) {
	s.c.setState(s.gen, state, err)
}
