package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"room_chat/pkg/logger"
)

type Repositories struct {
	Tx         Transactor
	User       UserRepository
	Room       RoomRepository
	Membership MembershipRepository
	Message    MessageRepository
	File       FileRepository
	Audit      AuditRepository
	RateLimit  RateLimitRepository
	Presence   PresenceRepository
}

// NewRepositories wires the Postgres repositories. Without a Redis client the
// rate limit and presence repositories stay nil for the caller to fill in.
func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		Tx:         NewTransactor(db, log),
		User:       NewUserRepository(db, log),
		Room:       NewRoomRepository(db, log),
		Membership: NewMembershipRepository(db, log),
		Message:    NewMessageRepository(db, log),
		File:       NewFileRepository(db, log),
		Audit:      NewAuditRepository(db, log),
	}

	if rdb != nil {
		repos.RateLimit = NewRateLimitRepository(rdb, log)
		repos.Presence = NewPresenceRepository(rdb, log)
		log.Info("Redis-backed rate limit and presence repositories initialized")
	}

	return repos
}
