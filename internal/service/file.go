package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"room_chat/internal/blob"
	"room_chat/internal/config"
	"room_chat/internal/delivery"
	"room_chat/internal/domain"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type FileService interface {
	Upload(ctx context.Context, identity domain.Identity, in UploadInput) (*domain.FileAttachment, error)
	// Open returns the attachment and its bytes. The caller closes the reader.
	Open(ctx context.Context, identity domain.Identity, fileID int64) (*domain.FileAttachment, io.ReadCloser, error)
	OpenThumbnail(ctx context.Context, identity domain.Identity, fileID int64) (*domain.FileAttachment, io.ReadCloser, error)
}

type UploadInput struct {
	MessageID uuid.UUID
	Filename  string
	Content   io.Reader
}

type fileService struct {
	repos     *repository.Repositories
	blobs     blob.Store
	publisher delivery.Publisher
	audit     AuditService
	cfg       config.StorageConfig
	clock     *Clock
	log       logger.Logger
}

func NewFileService(repos *repository.Repositories, blobs blob.Store, publisher delivery.Publisher, audit AuditService, cfg config.StorageConfig, clock *Clock, log logger.Logger) FileService {
	if publisher == nil {
		publisher = delivery.NopPublisher{}
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &fileService{
		repos:     repos,
		blobs:     blobs,
		publisher: publisher,
		audit:     audit,
		cfg:       cfg,
		clock:     clock,
		log:       log,
	}
}

func (s *fileService) Upload(ctx context.Context, identity domain.Identity, in UploadInput) (*domain.FileAttachment, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	msg, err := s.repos.Message.GetByID(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	if err := s.checkUploader(ctx, identity, msg); err != nil {
		return nil, err
	}
	if msg.File != nil {
		return nil, fmt.Errorf("message already has an attachment: %w", apperrors.ErrConflict)
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperrors.Validation("file", "is empty")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, apperrors.Validation("file", fmt.Sprintf("must be at most %d bytes", s.cfg.MaxUploadBytes))
	}

	mtype := mimetype.Detect(data)
	ext := mtype.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(in.Filename))
	}

	blobID := uuid.New()
	file := &domain.FileAttachment{
		MessageID:    msg.ID,
		Path:         "files/" + blobID.String() + ext,
		OriginalName: originalName(in.Filename),
		Size:         int64(len(data)),
		MimeType:     mtype.String(),
		CreatedAt:    s.clock.Now(),
	}
	if !identity.IsGuest {
		file.UserID = &identity.ID
	}

	if err := s.blobs.Put(ctx, file.Path, data, file.MimeType); err != nil {
		s.log.Error("Failed to store attachment", "error", err, "message_id", msg.ID)
		return nil, err
	}
	stored := []string{file.Path}

	if file.IsImage() {
		if thumb, err := blob.Thumbnail(data, s.cfg.ThumbnailWidth); err != nil {
			s.log.Warn("Failed to build thumbnail", "error", err, "message_id", msg.ID)
		} else {
			thumbPath := "thumbnails/" + blobID.String() + ".png"
			if err := s.blobs.Put(ctx, thumbPath, thumb, "image/png"); err != nil {
				s.log.Warn("Failed to store thumbnail", "error", err, "message_id", msg.ID)
			} else {
				file.ThumbnailPath = &thumbPath
				stored = append(stored, thumbPath)
			}
		}
	}

	err = s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repos.File.Create(ctx, file); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, &identity, &msg.RoomID, domain.EventTypeFileUploaded, map[string]interface{}{
			"message_id": msg.ID.String(),
			"size":       file.Size,
			"mime_type":  file.MimeType,
		})
	})
	if err != nil {
		s.log.Error("Failed to save attachment", "error", err, "message_id", msg.ID)
		for _, key := range stored {
			_ = s.blobs.Delete(context.WithoutCancel(ctx), key)
		}
		return nil, err
	}

	msg.File = file
	if err := s.publisher.Publish(ctx, msg.RoomID, domain.EventFileAttached, msg); err != nil {
		s.log.Warn("Failed to publish attachment", "error", err, "message_id", msg.ID)
	}
	return file, nil
}

// checkUploader allows the author of a message to attach to it. Guest
// messages have no author id, so any guest who is an active member of the
// room may attach to them.
func (s *fileService) checkUploader(ctx context.Context, identity domain.Identity, msg *domain.Message) error {
	switch {
	case msg.Type != domain.MessageTypeFile && msg.Type != domain.MessageTypeImage:
		return apperrors.Validation("message_id", "attachments belong to file or image messages")
	case msg.UserID != nil:
		if *msg.UserID != identity.ID {
			return fmt.Errorf("only the author can attach files: %w", apperrors.ErrUnauthorized)
		}
		return nil
	case msg.GuestName != nil && identity.IsGuest:
		ok, err := s.repos.Membership.IsActiveMember(ctx, msg.RoomID, identity.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrNotMember
		}
		return nil
	default:
		return fmt.Errorf("only the author can attach files: %w", apperrors.ErrUnauthorized)
	}
}

func (s *fileService) Open(ctx context.Context, identity domain.Identity, fileID int64) (*domain.FileAttachment, io.ReadCloser, error) {
	file, err := s.authorizedFile(ctx, identity, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, file.Path)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

func (s *fileService) OpenThumbnail(ctx context.Context, identity domain.Identity, fileID int64) (*domain.FileAttachment, io.ReadCloser, error) {
	file, err := s.authorizedFile(ctx, identity, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.ThumbnailPath == nil {
		return nil, nil, apperrors.ErrFileNotFound
	}
	rc, err := s.blobs.Open(ctx, *file.ThumbnailPath)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

// authorizedFile applies the read rule of the message's room to its file.
func (s *fileService) authorizedFile(ctx context.Context, identity domain.Identity, fileID int64) (*domain.FileAttachment, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	file, err := s.repos.File.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	msg, err := s.repos.Message.GetByID(ctx, file.MessageID)
	if err != nil {
		return nil, err
	}
	room, err := s.repos.Room.GetByID(ctx, msg.RoomID)
	if err != nil {
		return nil, err
	}
	if room.IsPrivate {
		ok, err := s.repos.Membership.IsActiveMember(ctx, room.ID, identity.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.ErrNotMember
		}
	}
	return file, nil
}

func originalName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
