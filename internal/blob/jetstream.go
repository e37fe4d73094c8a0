package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// JetStreamStore keeps blobs in a NATS JetStream object store bucket, so
// every server instance sees the same attachments.
type JetStreamStore struct {
	conn  *nats.Conn
	store jetstream.ObjectStore
	log   logger.Logger
}

// NewJetStreamStore connects and opens the bucket, creating it on first use.
func NewJetStreamStore(ctx context.Context, natsURL, bucket string, log logger.Logger) (*JetStreamStore, error) {
	conn, err := nats.Connect(natsURL, nats.Name("room_chat"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Chat attachments",
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open object store %q: %w", bucket, err)
	}

	log.Info("JetStream object store ready", "bucket", bucket)
	return &JetStreamStore{conn: conn, store: store, log: log}, nil
}

func (s *JetStreamStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	meta := jetstream.ObjectMeta{
		Name:    key,
		Headers: nats.Header{"Content-Type": []string{contentType}},
	}
	if _, err := s.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

func (s *JetStreamStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, apperrors.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

func (s *JetStreamStore) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		s.log.Warn("Failed to delete object", "error", err, "key", key)
		return err
	}
	return nil
}

func (s *JetStreamStore) Close() {
	s.conn.Close()
}
