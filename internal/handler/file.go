package handler

import (
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"room_chat/internal/domain"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// multipart framing allowance on top of the attachment itself
const multipartOverhead = 1 << 20

type FileHandler struct {
	fileService service.FileService
	maxBytes    int64
	log         logger.Logger
}

func NewFileHandler(fileService service.FileService, maxBytes int64, log logger.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		maxBytes:    maxBytes,
		log:         log,
	}
}

// Upload attaches the multipart "file" field to a file or image message.
func (h *FileHandler) Upload(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(apperrors.Validation("file", "a multipart file field is required"))
		return
	}
	f, err := header.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer f.Close()

	file, err := h.fileService.Upload(c.Request.Context(), id, service.UploadInput{
		MessageID: messageID,
		Filename:  header.Filename,
		Content:   f,
	})
	if err != nil {
		h.log.Warn("Upload failed", "error", err, "message_id", messageID)
		_ = c.Error(err)
		return
	}

	h.log.Info("File uploaded", "file_id", file.ID, "message_id", messageID, "size", file.Size)
	c.JSON(http.StatusCreated, file)
}

func (h *FileHandler) Download(c *gin.Context) {
	h.serve(c, h.fileService.Open, true)
}

func (h *FileHandler) Thumbnail(c *gin.Context) {
	h.serve(c, h.fileService.OpenThumbnail, false)
}

type openFunc func(ctx context.Context, id domain.Identity, fileID int64) (*domain.FileAttachment, io.ReadCloser, error)

func (h *FileHandler) serve(c *gin.Context, open openFunc, original bool) {
	id, ok := identity(c)
	if !ok {
		return
	}
	fileID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	file, rc, err := open(c.Request.Context(), id, fileID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer rc.Close()

	if !original {
		c.DataFromReader(http.StatusOK, -1, "image/png", rc, nil)
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.OriginalName})
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}
