package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	"room_chat/internal/repository"
)

type window struct {
	count   int64
	resetAt time.Time
}

type rateLimitRepository struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimitRepository counts requests in process; used when no Redis is configured.
func NewRateLimitRepository() repository.RateLimitRepository {
	return &rateLimitRepository{windows: make(map[string]*window), now: time.Now}
}

func (r *rateLimitRepository) Hit(_ context.Context, key string, win time.Duration) (int64, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		r.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

type presenceEntry struct {
	member domain.PresenceMember
	seenAt time.Time
}

type presenceRepository struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[string]presenceEntry
	now   func() time.Time
}

func NewPresenceRepository() repository.PresenceRepository {
	return &presenceRepository{rooms: make(map[uuid.UUID]map[string]presenceEntry), now: time.Now}
}

func (r *presenceRepository) Enter(_ context.Context, roomID uuid.UUID, member domain.PresenceMember, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]presenceEntry)
		r.rooms[roomID] = room
	}
	room[member.ConnectionID] = presenceEntry{member: member, seenAt: r.now()}
	return nil
}

func (r *presenceRepository) Leave(_ context.Context, roomID uuid.UUID, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		delete(room, connectionID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return nil
}

func (r *presenceRepository) Here(_ context.Context, roomID uuid.UUID, ttl time.Duration) ([]domain.PresenceMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	members := make([]domain.PresenceMember, 0)
	for id, e := range r.rooms[roomID] {
		if e.seenAt.Before(cutoff) {
			delete(r.rooms[roomID], id)
			continue
		}
		members = append(members, e.member)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].Since.Equal(members[j].Since) {
			return members[i].Since.Before(members[j].Since)
		}
		return members[i].ConnectionID < members[j].ConnectionID
	})
	return members, nil
}
