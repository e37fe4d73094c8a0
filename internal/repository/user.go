package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	CreateSession(ctx context.Context, session *domain.UserSession) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.UserSession, error)
	RevokeSession(ctx context.Context, sessionID uuid.UUID, reason string) error
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

const userColumns = `id, name, email, password_hash, is_anonymous, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.IsAnonymous,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, is_anonymous, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := conn(ctx, r.db).QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.IsAnonymous, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return r.mapWriteError(err, user)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := scanUser(conn(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		r.log.Error("Failed to get user by ID", "error", err)
		return nil, err
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := scanUser(conn(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		r.log.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, is_anonymous = $5, updated_at = $6
		WHERE id = $1
		RETURNING updated_at
	`

	err := conn(ctx, r.db).QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.IsAnonymous, time.Now().UTC(),
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrUserNotFound
		}
		return r.mapWriteError(err, user)
	}
	return nil
}

// mapWriteError turns a unique violation on email into ErrUserAlreadyExists.
func (r *userRepository) mapWriteError(err error, user *domain.User) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		r.log.Warn("User already exists (unique violation)", "constraint", pgErr.ConstraintName)
		return apperrors.ErrUserAlreadyExists
	}
	r.log.Error("Failed to write user", "error", err, "user_id", user.ID)
	return fmt.Errorf("failed to write user: %w", err)
}

func (r *userRepository) CreateSession(ctx context.Context, session *domain.UserSession) error {
	query := `
		INSERT INTO user_sessions (id, user_id, refresh_token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := conn(ctx, r.db).Exec(ctx, query,
		session.ID, session.UserID, session.RefreshTokenHash, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		r.log.Error("Failed to create session", "error", err)
		return err
	}
	return nil
}

func (r *userRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.UserSession, error) {
	query := `
		SELECT id, user_id, refresh_token_hash, created_at, expires_at, revoked_at, revoked_reason
		FROM user_sessions
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`

	session := &domain.UserSession{}
	err := conn(ctx, r.db).QueryRow(ctx, query, tokenHash).Scan(
		&session.ID, &session.UserID, &session.RefreshTokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt, &session.RevokedReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidToken
		}
		r.log.Error("Failed to get session", "error", err)
		return nil, err
	}
	return session, nil
}

func (r *userRepository) RevokeSession(ctx context.Context, sessionID uuid.UUID, reason string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE user_sessions SET revoked_at = NOW(), revoked_reason = $2 WHERE id = $1
	`, sessionID, reason)
	if err != nil {
		r.log.Error("Failed to revoke session", "error", err)
		return err
	}
	return nil
}
