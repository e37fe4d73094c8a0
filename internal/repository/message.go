package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	// GetByID returns the message hydrated with author and attachment.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// Page returns up to q.Limit hydrated messages strictly beyond q.Cursor in
	// q.Direction, ordered by (created_at, id) in that direction.
	Page(ctx context.Context, q domain.PageQuery) ([]*domain.Message, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageSelect = `
	SELECT m.id, m.room_id, m.user_id, m.message, m.message_type, m.guest_name, m.reply_to, m.created_at,
	       u.name,
	       f.id, f.user_id, f.path, f.original_name, f.size, f.mime_type, f.thumbnail_path, f.created_at
	FROM messages m
	LEFT JOIN users u ON u.id = m.user_id
	LEFT JOIN LATERAL (
		SELECT * FROM files WHERE files.message_id = m.id ORDER BY files.id DESC LIMIT 1
	) f ON TRUE
`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	var (
		msgType   string
		userName  *string
		fileID    *int64
		fileUser  *uuid.UUID
		path      *string
		original  *string
		size      *int64
		mimeType  *string
		thumbnail *string
		fileAt    *time.Time
	)

	err := row.Scan(
		&m.ID, &m.RoomID, &m.UserID, &m.Body, &msgType, &m.GuestName, &m.ReplyTo, &m.CreatedAt,
		&userName,
		&fileID, &fileUser, &path, &original, &size, &mimeType, &thumbnail, &fileAt,
	)
	if err != nil {
		return nil, err
	}

	m.Type = domain.MessageType(msgType)
	m.CreatedAt = m.CreatedAt.UTC()
	if m.UserID != nil && userName != nil {
		m.User = &domain.MessageAuthor{ID: *m.UserID, Name: *userName}
	}
	if fileID != nil {
		m.File = &domain.FileAttachment{
			ID:            *fileID,
			MessageID:     m.ID,
			UserID:        fileUser,
			Path:          *path,
			OriginalName:  *original,
			Size:          *size,
			MimeType:      *mimeType,
			ThumbnailPath: thumbnail,
			CreatedAt:     *fileAt,
		}
	}
	return m, nil
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (id, room_id, user_id, message, message_type, guest_name, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := conn(ctx, r.db).Exec(ctx, query,
		message.ID, message.RoomID, message.UserID, message.Body, string(message.Type),
		message.GuestName, message.ReplyTo, message.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "room_id", message.RoomID)
		return err
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	m, err := scanMessage(conn(ctx, r.db).QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", id)
		return nil, err
	}
	return m, nil
}

func (r *messageRepository) Page(ctx context.Context, q domain.PageQuery) ([]*domain.Message, error) {
	query, args := buildPageQuery(q)

	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to get messages", "error", err, "room_id", q.RoomID)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, q.Limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// buildPageQuery renders the keyset predicate. Row comparison on
// (created_at, id) matches the index and the uuid byte order.
func buildPageQuery(q domain.PageQuery) (string, []any) {
	op, order := "<", "DESC"
	if q.Direction == domain.DirectionNewer {
		op, order = ">", "ASC"
	}

	var sb strings.Builder
	sb.WriteString(messageSelect)
	sb.WriteString(" WHERE m.room_id = $1")
	args := []any{q.RoomID}

	if q.Cursor != nil {
		if q.Cursor.ID == uuid.Nil {
			args = append(args, q.Cursor.Timestamp)
			fmt.Fprintf(&sb, " AND m.created_at %s $%d", op, len(args))
		} else {
			args = append(args, q.Cursor.Timestamp, q.Cursor.ID)
			fmt.Fprintf(&sb, " AND (m.created_at, m.id) %s ($%d, $%d)", op, len(args)-1, len(args))
		}
	}

	args = append(args, q.Limit)
	fmt.Fprintf(&sb, " ORDER BY m.created_at %s, m.id %s LIMIT $%d", order, order, len(args))
	return sb.String(), args
}
