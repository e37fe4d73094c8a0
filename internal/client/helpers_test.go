package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/domain"
)

type fetchCall struct {
	RoomID uuid.UUID
	Cursor *domain.Cursor
	Dir    domain.Direction
	Limit  int
}

// fakeBackend serves pages with the server's keyset semantics.
type fakeBackend struct {
	mu       sync.Mutex
	msgs     []*domain.Message
	fetches  []fetchCall
	fetchErr error
	sends    int
	now      time.Time

	// When set, older-page fetches with a cursor wait on block after
	// signalling started.
	block   chan struct{}
	started chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeBackend) add(roomID uuid.UUID, body string) *domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	m := &domain.Message{ID: uuid.New(), RoomID: roomID, Body: body, Type: domain.MessageTypeText, CreatedAt: f.now}
	f.msgs = append(f.msgs, m)
	return m
}

// addAt stores a message with an explicit timestamp, keeping the backing
// slice in (created_at, id) order like the server's index.
func (f *fakeBackend) addAt(roomID uuid.UUID, body string, at time.Time) *domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &domain.Message{ID: uuid.New(), RoomID: roomID, Body: body, Type: domain.MessageTypeText, CreatedAt: at}
	i := sort.Search(len(f.msgs), func(i int) bool { return m.Less(f.msgs[i]) })
	f.msgs = append(f.msgs, nil)
	copy(f.msgs[i+1:], f.msgs[i:])
	f.msgs[i] = m
	return m
}

func (f *fakeBackend) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeBackend) calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.fetches...)
}

func (f *fakeBackend) FetchPage(ctx context.Context, roomID uuid.UUID, cursor *domain.Cursor, limit int, dir domain.Direction) (*domain.Page, error) {
	f.mu.Lock()
	call := fetchCall{RoomID: roomID, Dir: dir, Limit: limit}
	if cursor != nil {
		c := *cursor
		call.Cursor = &c
	}
	f.fetches = append(f.fetches, call)
	err := f.fetchErr
	var block chan struct{}
	if dir == domain.DirectionOlder && cursor != nil {
		block = f.block
	}
	started := f.started
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			close(started)
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var sel []*domain.Message
	if dir == domain.DirectionNewer {
		for _, m := range f.msgs {
			if m.RoomID == roomID && (cursor == nil || cursor.Compare(m) > 0) {
				sel = append(sel, m)
			}
		}
	} else {
		for i := len(f.msgs) - 1; i >= 0; i-- {
			m := f.msgs[i]
			if m.RoomID == roomID && (cursor == nil || cursor.Compare(m) < 0) {
				sel = append(sel, m)
			}
		}
	}
	page := &domain.Page{NextCursor: cursor}
	if len(sel) > limit {
		sel = sel[:limit]
		page.HasMore = true
	}
	page.Messages = sel
	if len(sel) > 0 {
		c := sel[len(sel)-1].Cursor()
		page.NextCursor = &c
	}
	return page, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, roomID uuid.UUID, req SendRequest) (*domain.Message, error) {
	f.mu.Lock()
	f.sends++
	f.mu.Unlock()
	m := f.add(roomID, req.Body)
	echo := *m
	return &echo, nil
}

// captureChannel hands its sink to the test and idles until cancelled.
type captureChannel struct {
	sinks chan Sink
}

func newCaptureChannel() *captureChannel {
	return &captureChannel{sinks: make(chan Sink, 4)}
}

func (c *captureChannel) Run(ctx context.Context, _ uuid.UUID, sink Sink) error {
	c.sinks <- sink
	<-ctx.Done()
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	states  []ConnectionState
	errs    []error
	changes int
}

func (n *recordingNotifier) MessagesChanged(uuid.UUID, []*domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes++
}

func (n *recordingNotifier) ConnectionChanged(_ uuid.UUID, state ConnectionState, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
}

func (n *recordingNotifier) Error(_ uuid.UUID, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *recordingNotifier) stateLog() []ConnectionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ConnectionState(nil), n.states...)
}

func bodies(msgs []*domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}
