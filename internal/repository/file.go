package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type FileRepository interface {
	Create(ctx context.Context, file *domain.FileAttachment) error
	GetByID(ctx context.Context, id int64) (*domain.FileAttachment, error)
}

type fileRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewFileRepository(db *pgxpool.Pool, log logger.Logger) FileRepository {
	return &fileRepository{db: db, log: log}
}

func (r *fileRepository) Create(ctx context.Context, file *domain.FileAttachment) error {
	query := `
		INSERT INTO files (message_id, user_id, path, original_name, size, mime_type, thumbnail_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRow(ctx, query,
		file.MessageID, file.UserID, file.Path, file.OriginalName, file.Size,
		file.MimeType, file.ThumbnailPath, file.CreatedAt,
	).Scan(&file.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.log.Warn("Message already has an attachment (unique violation)", "message_id", file.MessageID)
			return fmt.Errorf("message already has an attachment: %w", apperrors.ErrConflict)
		}
		r.log.Error("Failed to create file", "error", err, "message_id", file.MessageID)
		return err
	}
	return nil
}

func (r *fileRepository) GetByID(ctx context.Context, id int64) (*domain.FileAttachment, error) {
	query := `
		SELECT id, message_id, user_id, path, original_name, size, mime_type, thumbnail_path, created_at
		FROM files
		WHERE id = $1
	`

	f := &domain.FileAttachment{}
	err := conn(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&f.ID, &f.MessageID, &f.UserID, &f.Path, &f.OriginalName, &f.Size,
		&f.MimeType, &f.ThumbnailPath, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrFileNotFound
		}
		r.log.Error("Failed to get file", "error", err, "file_id", id)
		return nil, err
	}
	return f, nil
}
