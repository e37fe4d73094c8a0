// Package client keeps a local, ordered copy of a room timeline in sync
// with the server over either delivery strategy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

type AuthResponse struct {
	User         domain.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

type ServerInfo struct {
	DeliveryStrategy string `json:"delivery_strategy"`
	PollIntervalMS   int64  `json:"poll_interval_ms"`
	WSPath           string `json:"ws_path,omitempty"`
}

func (i ServerInfo) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalMS) * time.Millisecond
}

// SendRequest is the body of a message append.
type SendRequest struct {
	Body      string             `json:"message"`
	Type      domain.MessageType `json:"message_type,omitempty"`
	GuestName *string            `json:"guest_name,omitempty"`
	ReplyTo   *uuid.UUID         `json:"reply_to,omitempty"`
}

// API talks to the chat server over HTTP. Every failure it returns is one
// of the pkg/errors kinds; transport failures are ErrTransientNetwork.
type API struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
}

func NewAPI(baseURL string, session *Session, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		session:    session,
	}
}

func (a *API) Session() *Session {
	return a.session
}

// RoomSocketURL is the websocket address of a room topic.
func (a *API) RoomSocketURL(roomID uuid.UUID) string {
	base := a.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/rooms/" + roomID.String()
}

func (a *API) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := a.do(ctx, http.MethodGet, "/server-info", nil, &info, false); err != nil {
		return nil, err
	}
	return &info, nil
}

func (a *API) Register(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	return a.authenticate(ctx, "/api/v1/auth/register", map[string]string{
		"email": email, "password": password, "name": name,
	})
}

func (a *API) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return a.authenticate(ctx, "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	})
}

func (a *API) Guest(ctx context.Context, name string) (*AuthResponse, error) {
	return a.authenticate(ctx, "/api/v1/auth/guest", map[string]string{"name": name})
}

func (a *API) authenticate(ctx context.Context, path string, body interface{}) (*AuthResponse, error) {
	var resp AuthResponse
	if err := a.do(ctx, http.MethodPost, path, body, &resp, false); err != nil {
		return nil, err
	}
	a.session.Authenticate(&resp)
	return &resp, nil
}

func (a *API) CreateRoom(ctx context.Context, name string, private, allowGuests bool) (*domain.Room, error) {
	var room domain.Room
	err := a.do(ctx, http.MethodPost, "/api/v1/rooms", map[string]interface{}{
		"name": name, "is_private": private, "allow_anonymous": allowGuests,
	}, &room, true)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (a *API) JoinRoom(ctx context.Context, roomID uuid.UUID) error {
	return a.do(ctx, http.MethodPost, "/api/v1/rooms/"+roomID.String()+"/join", nil, nil, true)
}

func (a *API) LeaveRoom(ctx context.Context, roomID uuid.UUID) error {
	return a.do(ctx, http.MethodPost, "/api/v1/rooms/"+roomID.String()+"/leave", nil, nil, true)
}

// FetchPage reads one page of a room timeline. A nil cursor starts at the
// newest message.
func (a *API) FetchPage(ctx context.Context, roomID uuid.UUID, cursor *domain.Cursor, limit int, dir domain.Direction) (*domain.Page, error) {
	q := url.Values{}
	if dir != "" {
		q.Set("direction", string(dir))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != nil {
		q.Set("timestamp", cursor.Timestamp.UTC().Format(time.RFC3339Nano))
		if cursor.ID != uuid.Nil {
			q.Set("cursor_id", cursor.ID.String())
		}
	}
	path := "/api/v1/rooms/" + roomID.String() + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var env domain.PageEnvelope
	if err := a.do(ctx, http.MethodGet, path, nil, &env, true); err != nil {
		return nil, err
	}
	return env.Page(), nil
}

func (a *API) SendMessage(ctx context.Context, roomID uuid.UUID, req SendRequest) (*domain.Message, error) {
	var msg domain.Message
	if err := a.do(ctx, http.MethodPost, "/api/v1/rooms/"+roomID.String()+"/messages", req, &msg, true); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, ok := a.session.AccessToken()
		if !ok {
			return apperrors.ErrUnauthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %v: %w", method, path, err, apperrors.ErrTransientNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apperrors.APIError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if apiErr.Field != "" {
			return apperrors.Validation(apiErr.Field, apiErr.Message)
		}
		return apperrors.FromHTTPStatus(resp.StatusCode, apiErr.Message)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v: %w", err, apperrors.ErrTransientNetwork)
	}
	return nil
}
