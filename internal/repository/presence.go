package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"room_chat/internal/domain"
	"room_chat/pkg/logger"
)

const presenceKeyFormat = "chat:presence:%s"

// PresenceRepository stores live subscriptions per room. Entries not
// refreshed within ttl are treated as gone.
type PresenceRepository interface {
	// Enter adds or refreshes a connection.
	Enter(ctx context.Context, roomID uuid.UUID, member domain.PresenceMember, ttl time.Duration) error
	Leave(ctx context.Context, roomID uuid.UUID, connectionID string) error
	Here(ctx context.Context, roomID uuid.UUID, ttl time.Duration) ([]domain.PresenceMember, error)
}

type presenceRecord struct {
	domain.PresenceMember
	SeenAt time.Time `json:"seen_at"`
}

type redisPresenceRepository struct {
	rdb *redis.Client
	log logger.Logger
	now func() time.Time
}

func NewPresenceRepository(rdb *redis.Client, log logger.Logger) PresenceRepository {
	return &redisPresenceRepository{rdb: rdb, log: log, now: time.Now}
}

func presenceKey(roomID uuid.UUID) string {
	return fmt.Sprintf(presenceKeyFormat, roomID.String())
}

func (r *redisPresenceRepository) Enter(ctx context.Context, roomID uuid.UUID, member domain.PresenceMember, ttl time.Duration) error {
	raw, err := json.Marshal(presenceRecord{PresenceMember: member, SeenAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(roomID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, member.ConnectionID, raw)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to record presence", "error", err, "room_id", roomID)
		return fmt.Errorf("failed to record presence: %w", err)
	}
	return nil
}

func (r *redisPresenceRepository) Leave(ctx context.Context, roomID uuid.UUID, connectionID string) error {
	if err := r.rdb.HDel(ctx, presenceKey(roomID), connectionID).Err(); err != nil {
		r.log.Error("Failed to remove presence", "error", err, "room_id", roomID)
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

func (r *redisPresenceRepository) Here(ctx context.Context, roomID uuid.UUID, ttl time.Duration) ([]domain.PresenceMember, error) {
	key := presenceKey(roomID)
	entries, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to load presence", "error", err, "room_id", roomID)
		return nil, fmt.Errorf("failed to load presence: %w", err)
	}

	cutoff := r.now().UTC().Add(-ttl)
	members := make([]domain.PresenceMember, 0, len(entries))
	var stale []string
	for field, raw := range entries {
		var rec presenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.SeenAt.Before(cutoff) {
			stale = append(stale, field)
			continue
		}
		members = append(members, rec.PresenceMember)
	}

	// connections of crashed instances never call Leave
	if len(stale) > 0 {
		if err := r.rdb.HDel(ctx, key, stale...).Err(); err != nil {
			r.log.Warn("Failed to prune stale presence", "error", err, "room_id", roomID)
		}
	}

	sortPresence(members)
	return members, nil
}

func sortPresence(members []domain.PresenceMember) {
	sort.Slice(members, func(i, j int) bool {
		if !members[i].Since.Equal(members[j].Since) {
			return members[i].Since.Before(members[j].Since)
		}
		return members[i].ConnectionID < members[j].ConnectionID
	})
}
