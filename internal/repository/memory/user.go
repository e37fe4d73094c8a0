package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

type userRepository struct {
	s *Store
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; ok {
		return apperrors.ErrUserAlreadyExists
	}
	if user.Email != nil && r.byEmail(*user.Email) != nil {
		return apperrors.ErrUserAlreadyExists
	}
	stored := *user
	r.s.users[user.ID] = &stored
	r.s.onRollback(ctx, func() { delete(r.s.users, user.ID) })
	return nil
}

func (r *userRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u := r.byEmail(email)
	if u == nil {
		return nil, apperrors.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (r *userRepository) byEmail(email string) *domain.User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.users {
		if u.Email != nil && *u.Email == email {
			return u
		}
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.users[user.ID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	if user.Email != nil {
		if other := r.byEmail(*user.Email); other != nil && other.ID != user.ID {
			return apperrors.ErrUserAlreadyExists
		}
	}

	prev := *current
	user.UpdatedAt = time.Now().UTC()
	*current = *user
	r.s.onRollback(ctx, func() { *current = prev })
	return nil
}

func (r *userRepository) CreateSession(ctx context.Context, session *domain.UserSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := *session
	r.s.sessions[session.ID] = &stored
	r.s.onRollback(ctx, func() { delete(r.s.sessions, session.ID) })
	return nil
}

func (r *userRepository) GetSessionByTokenHash(_ context.Context, tokenHash string) (*domain.UserSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	for _, sess := range r.s.sessions {
		if sess.RefreshTokenHash == tokenHash && sess.Usable(now) {
			out := *sess
			return &out, nil
		}
	}
	return nil, apperrors.ErrInvalidToken
}

func (r *userRepository) RevokeSession(_ context.Context, sessionID uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sess, ok := r.s.sessions[sessionID]; ok {
		now := time.Now()
		sess.RevokedAt = &now
		sess.RevokedReason = &reason
	}
	return nil
}
