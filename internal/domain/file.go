package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type FileAttachment struct {
	ID            int64      `json:"id"`
	MessageID     uuid.UUID  `json:"message_id"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	Path          string     `json:"path"`
	OriginalName  string     `json:"original_name"`
	Size          int64      `json:"size"`
	MimeType      string     `json:"mime_type"`
	ThumbnailPath *string    `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (f *FileAttachment) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}
