package memory

import (
	"context"
	"fmt"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

type fileRepository struct {
	s *Store
}

func (r *fileRepository) Create(ctx context.Context, file *domain.FileAttachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.messages[file.MessageID]; !ok {
		return apperrors.ErrMessageNotFound
	}
	for _, f := range r.s.files {
		if f.MessageID == file.MessageID {
			return fmt.Errorf("message already has an attachment: %w", apperrors.ErrConflict)
		}
	}
	r.s.nextFileID++
	file.ID = r.s.nextFileID
	stored := *file
	r.s.files[stored.ID] = &stored
	r.s.onRollback(ctx, func() { delete(r.s.files, stored.ID) })
	return nil
}

func (r *fileRepository) GetByID(_ context.Context, id int64) (*domain.FileAttachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.files[id]
	if !ok {
		return nil, apperrors.ErrFileNotFound
	}
	out := *f
	return &out, nil
}
