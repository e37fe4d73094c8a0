package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type MembershipRepository interface {
	IsActiveMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	// GetLatest returns the most recent membership row, active or not.
	GetLatest(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error)
	// RecordJoin activates the membership, reusing the latest row if there is one.
	RecordJoin(ctx context.Context, roomID, userID uuid.UUID, at time.Time) (*domain.Membership, error)
	// RecordLeave marks the active membership abandoned.
	RecordLeave(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error
	ListActiveMembers(ctx context.Context, roomID uuid.UUID) ([]*domain.Member, error)
}

type membershipRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMembershipRepository(db *pgxpool.Pool, log logger.Logger) MembershipRepository {
	return &membershipRepository{db: db, log: log}
}

func (r *membershipRepository) IsActiveMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM room_user
			WHERE room_id = $1 AND user_id = $2 AND abandonment_in IS NULL
		)
	`

	var active bool
	if err := conn(ctx, r.db).QueryRow(ctx, query, roomID, userID).Scan(&active); err != nil {
		r.log.Error("Failed to check membership", "error", err, "room_id", roomID, "user_id", userID)
		return false, err
	}
	return active, nil
}

func (r *membershipRepository) GetLatest(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT id, room_id, user_id, joined_at, abandonment_in
		FROM room_user
		WHERE room_id = $1 AND user_id = $2
		ORDER BY (abandonment_in IS NULL) DESC, joined_at DESC, id DESC
		LIMIT 1
	`

	m := &domain.Membership{}
	err := conn(ctx, r.db).QueryRow(ctx, query, roomID, userID).Scan(
		&m.ID, &m.RoomID, &m.UserID, &m.JoinedAt, &m.AbandonmentIn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get membership", "error", err)
		return nil, err
	}
	return m, nil
}

func (r *membershipRepository) RecordJoin(ctx context.Context, roomID, userID uuid.UUID, at time.Time) (*domain.Membership, error) {
	latest, err := r.GetLatest(ctx, roomID, userID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	q := conn(ctx, r.db)
	m := &domain.Membership{RoomID: roomID, UserID: userID, JoinedAt: at}

	if latest == nil {
		err = q.QueryRow(ctx, `
			INSERT INTO room_user (room_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			RETURNING id
		`, roomID, userID, at).Scan(&m.ID)
	} else {
		m.ID = latest.ID
		_, err = q.Exec(ctx, `
			UPDATE room_user SET joined_at = $2, abandonment_in = NULL WHERE id = $1
		`, latest.ID, at)
	}
	if err != nil {
		r.log.Error("Failed to record join", "error", err, "room_id", roomID, "user_id", userID)
		return nil, err
	}
	return m, nil
}

func (r *membershipRepository) RecordLeave(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE room_user SET abandonment_in = $3
		WHERE room_id = $1 AND user_id = $2 AND abandonment_in IS NULL
	`, roomID, userID, at)
	if err != nil {
		r.log.Error("Failed to record leave", "error", err, "room_id", roomID, "user_id", userID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotMember
	}
	return nil
}

func (r *membershipRepository) ListActiveMembers(ctx context.Context, roomID uuid.UUID) ([]*domain.Member, error) {
	query := `
		SELECT u.id, u.name, u.is_anonymous, m.joined_at
		FROM room_user m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1 AND m.abandonment_in IS NULL
		ORDER BY m.joined_at
	`

	rows, err := conn(ctx, r.db).Query(ctx, query, roomID)
	if err != nil {
		r.log.Error("Failed to list members", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	members := make([]*domain.Member, 0)
	for rows.Next() {
		m := &domain.Member{}
		if err := rows.Scan(&m.UserID, &m.Name, &m.IsAnonymous, &m.JoinedAt); err != nil {
			r.log.Error("Failed to scan member", "error", err)
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
