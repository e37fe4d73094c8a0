// Package blob stores attachment bytes under opaque keys.
package blob

import (
	"context"
	"io"
	"path"
	"strings"

	apperrors "room_chat/pkg/errors"
)

// Store keeps attachment bytes. Keys are slash separated, e.g. "files/<id>.png".
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Open fails with ErrFileNotFound for an unknown key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != key || strings.HasPrefix(cleaned, "..") {
		return "", apperrors.Validation("key", "invalid blob key")
	}
	return cleaned, nil
}
