package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"room_chat/internal/blob"
	"room_chat/internal/config"
	"room_chat/internal/domain"
	"room_chat/internal/repository"
	"room_chat/internal/repository/memory"
	"room_chat/pkg/logger"
)

type recordedEvent struct {
	RoomID  uuid.UUID
	Name    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, roomID uuid.UUID, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{RoomID: roomID, Name: event, Payload: payload})
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			Issuer:        "room_chat_test",
		},
		Chat: config.ChatConfig{
			DefaultPageSize:  20,
			MaxPageSize:      100,
			MaxMessageLength: 1000,
			MaxSystemLength:  2000,
			PublicRoomsLimit: 10,
		},
		Delivery: config.DeliveryConfig{PresenceTTL: time.Minute},
		Storage: config.StorageConfig{
			MaxUploadBytes: 1 << 20,
			ThumbnailWidth: 64,
		},
		RateLimit: config.RateLimitConfig{Requests: 2, Window: time.Minute},
	}
}

type testEnv struct {
	store *memory.Store
	repos *repository.Repositories
	pub   *recordingPublisher
	blobs *blob.LocalStore
	svc   *Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	pub := &recordingPublisher{}
	blobs, err := blob.NewLocalStore(t.TempDir(), logger.NewNop())
	require.NoError(t, err)

	return &testEnv{
		store: store,
		repos: repos,
		pub:   pub,
		blobs: blobs,
		svc:   NewServices(repos, blobs, pub, testConfig(), logger.NewNop()),
	}
}

func (e *testEnv) user(t *testing.T, name string) domain.Identity {
	t.Helper()
	email := name + "@example.com"
	u := &domain.User{ID: uuid.New(), Name: name, Email: &email, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, e.repos.User.Create(context.Background(), u))
	return u.Identity()
}

func (e *testEnv) guest(t *testing.T, name string) domain.Identity {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Name: name, IsAnonymous: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, e.repos.User.Create(context.Background(), u))
	return u.Identity()
}

func (e *testEnv) room(t *testing.T, owner domain.Identity, private, allowGuests bool) *domain.Room {
	t.Helper()
	room, err := e.svc.Room.Create(context.Background(), owner, CreateRoomInput{
		Name:           "general",
		IsPrivate:      private,
		AllowAnonymous: allowGuests,
	})
	require.NoError(t, err)
	return room
}

func (e *testEnv) join(t *testing.T, id domain.Identity, roomID uuid.UUID) {
	t.Helper()
	_, err := e.svc.Room.Join(context.Background(), id, roomID)
	require.NoError(t, err)
}

func (e *testEnv) send(t *testing.T, id domain.Identity, roomID uuid.UUID, body string) *domain.Message {
	t.Helper()
	msg, err := e.svc.Synchronizer.Append(context.Background(), id, AppendRequest{RoomID: roomID, Body: body})
	require.NoError(t, err)
	return msg
}
