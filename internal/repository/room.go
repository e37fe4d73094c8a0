package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	// GetForShare reads the room and, inside a transaction, holds a share
	// lock on it until commit so it cannot be deleted underneath the caller.
	GetForShare(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListPublic(ctx context.Context, limit int) ([]*domain.Room, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Room, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

const roomColumns = `
	r.id, r.name, r.description, r.is_private, r.allow_anonymous, r.created_by,
	r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM room_user ru WHERE ru.room_id = r.id AND ru.abandonment_in IS NULL)`

func scanRoom(row pgx.Row) (*domain.Room, error) {
	room := &domain.Room{}
	err := row.Scan(
		&room.ID, &room.Name, &room.Description, &room.IsPrivate, &room.AllowAnonymous,
		&room.CreatedBy, &room.CreatedAt, &room.UpdatedAt, &room.MembersCount,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	query := `
		INSERT INTO rooms (id, name, description, is_private, allow_anonymous, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := conn(ctx, r.db).QueryRow(ctx, query,
		room.ID, room.Name, room.Description, room.IsPrivate, room.AllowAnonymous,
		room.CreatedBy, room.CreatedAt, room.UpdatedAt,
	).Scan(&room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		r.log.Error("Failed to create room", "error", err)
		return err
	}
	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	return r.get(ctx, `SELECT`+roomColumns+` FROM rooms r WHERE r.id = $1`, id)
}

func (r *roomRepository) GetForShare(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	// members_count is left at zero here; the lock is what matters
	return r.get(ctx, `
		SELECT r.id, r.name, r.description, r.is_private, r.allow_anonymous, r.created_by,
		       r.created_at, r.updated_at, 0
		FROM rooms r WHERE r.id = $1 FOR SHARE`, id)
}

func (r *roomRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.Room, error) {
	room, err := scanRoom(conn(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room by ID", "error", err, "room_id", id)
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check room existence", "error", err, "room_id", id)
		return false, err
	}
	return exists, nil
}

func (r *roomRepository) Update(ctx context.Context, room *domain.Room) error {
	query := `
		UPDATE rooms
		SET name = $2, description = $3, is_private = $4, allow_anonymous = $5, updated_at = $6
		WHERE id = $1
	`

	tag, err := conn(ctx, r.db).Exec(ctx, query,
		room.ID, room.Name, room.Description, room.IsPrivate, room.AllowAnonymous, room.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to update room", "error", err, "room_id", room.ID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoomNotFound
	}
	return nil
}

// Delete removes the room. Memberships, messages and files go with it by cascade.
func (r *roomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete room", "error", err, "room_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoomNotFound
	}
	return nil
}

func (r *roomRepository) ListPublic(ctx context.Context, limit int) ([]*domain.Room, error) {
	query := `
		SELECT` + roomColumns + ` AS members_count
		FROM rooms r
		WHERE r.is_private = FALSE
		ORDER BY members_count DESC, r.created_at DESC
		LIMIT $1
	`
	return r.list(ctx, query, limit)
}

func (r *roomRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Room, error) {
	query := `
		SELECT` + roomColumns + `
		FROM rooms r
		JOIN room_user m ON m.room_id = r.id AND m.abandonment_in IS NULL
		WHERE m.user_id = $1
		ORDER BY m.joined_at DESC
	`
	return r.list(ctx, query, userID)
}

func (r *roomRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Room, error) {
	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list rooms", "error", err)
		return nil, err
	}
	defer rows.Close()

	rooms := make([]*domain.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
