// Package memory keeps every repository in process. It backs
// STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	"room_chat/internal/repository"
)

// Store is the shared state behind the memory repositories.
// mu guards the maps; txMu serializes transactions.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users       map[uuid.UUID]*domain.User
	sessions    map[uuid.UUID]*domain.UserSession
	rooms       map[uuid.UUID]*domain.Room
	memberships []*domain.Membership
	messages    map[uuid.UUID]*domain.Message
	// byRoom holds each room's messages sorted by (CreatedAt, ID).
	byRoom map[uuid.UUID][]*domain.Message
	files  map[int64]*domain.FileAttachment
	audit  []*domain.AuditLog

	nextMembershipID int64
	nextFileID       int64
	nextAuditID      int64
}

func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*domain.User),
		sessions: make(map[uuid.UUID]*domain.UserSession),
		rooms:    make(map[uuid.UUID]*domain.Room),
		messages: make(map[uuid.UUID]*domain.Message),
		byRoom:   make(map[uuid.UUID][]*domain.Message),
		files:    make(map[int64]*domain.FileAttachment),
	}
}

// NewRepositories builds a full repository set over a fresh store.
func NewRepositories() *repository.Repositories {
	return NewStore().Repositories()
}

func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Tx:         s,
		User:       &userRepository{s: s},
		Room:       &roomRepository{s: s},
		Membership: &membershipRepository{s: s},
		Message:    &messageRepository{s: s},
		File:       &fileRepository{s: s},
		Audit:      &auditRepository{s: s},
		RateLimit:  NewRateLimitRepository(),
		Presence:   NewPresenceRepository(),
	}
}

type txKey struct{}

type txState struct {
	undo []func()
}

// WithinTx runs fn while holding the transaction lock. Writes made through
// the ctx handed to fn are undone if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	st := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		s.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback registers an undo step. Callers hold s.mu.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, undo)
	}
}

var _ repository.Transactor = (*Store)(nil)
