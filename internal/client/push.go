package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// PushChannel subscribes to a room topic over a websocket. Events are only
// hints: every confirmed (re)subscription runs a resync so that anything
// published while disconnected is fetched instead.
type PushChannel struct {
	socketURL func(roomID uuid.UUID) string
	token     func() (string, bool)
	dialer    *websocket.Dialer
	backoff   BackoffConfig
	log       logger.Logger
}

func NewPushChannel(api *API, bo BackoffConfig, log logger.Logger) *PushChannel {
	return &PushChannel{
		socketURL: api.RoomSocketURL,
		token:     api.Session().AccessToken,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		backoff: bo,
		log:     log,
	}
}

func (p *PushChannel) Run(ctx context.Context, roomID uuid.UUID, sink Sink) error {
	b := p.backoff.build()

	for {
		sink.SetConnectionState(Connecting, nil)
		err := p.subscribe(ctx, roomID, sink, b.Reset)
		if ctx.Err() != nil {
			return nil
		}
		sink.SetConnectionState(Disconnected, err)
		if !apperrors.IsRetryable(err) {
			return err
		}

		wait := b.NextBackOff()
		p.log.Warn("Subscription lost, reconnecting", "room_id", roomID, "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// subscribe holds one websocket connection until it fails or ctx ends.
func (p *PushChannel) subscribe(ctx context.Context, roomID uuid.UUID, sink Sink, confirmed func()) error {
	token, ok := p.token()
	if !ok {
		return apperrors.ErrUnauthenticated
	}

	conn, resp, err := p.dialer.DialContext(ctx, p.socketURL(roomID)+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		if resp != nil {
			return apperrors.FromHTTPStatus(resp.StatusCode, "subscription refused")
		}
		return fmt.Errorf("dial: %v: %w", err, apperrors.ErrTransientNetwork)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
			_ = conn.Close()
		}
	}()

	for {
		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				p.log.Warn("Dropping malformed event", "room_id", roomID, "error", err)
				continue
			}
			return fmt.Errorf("read: %v: %w", err, apperrors.ErrTransientNetwork)
		}

		switch ev.Name {
		case domain.EventSubscriptionSucceeded:
			confirmed()
			sink.SetConnectionState(Connected, nil)
			if err := sink.Resync(ctx); err != nil {
				if !apperrors.IsRetryable(err) {
					return err
				}
				p.log.Warn("Resync after subscribe failed", "room_id", roomID, "error", err)
			}
		case domain.EventSubscriptionError:
			var subErr domain.SubscriptionError
			if err := json.Unmarshal(ev.Data, &subErr); err != nil {
				return apperrors.ErrUnauthorized
			}
			return apperrors.FromHTTPStatus(subErr.Status, subErr.Message)
		case domain.EventMessageSent, domain.EventFileAttached:
			var msg domain.Message
			if err := json.Unmarshal(ev.Data, &msg); err != nil {
				p.log.Warn("Dropping malformed message", "room_id", roomID, "error", err)
				continue
			}
			sink.Deliver(&msg)
		case domain.EventRoomDeleted:
			return apperrors.ErrRoomNotFound
		default:
			p.log.Debug("Ignoring event", "room_id", roomID, "event", ev.Name)
		}
	}
}
