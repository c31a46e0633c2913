// Package client talks to a running server over HTTP and websocket streams.
// *Client implements coordinator.Backend, so a remote user can mount the
// same projections an in-process caller would.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Client acts on behalf of one user identified by a bearer token.
type Client struct {
	baseURL string
	userID  string
	token   string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// New returns a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL, userID, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *Client) UserID() string { return c.userID }

type errorBody struct {
	Error struct {
		Code    apperror.Code `json:"code"`
		Message string        `json:"message"`
	} `json:"error"`
}

// do sends a JSON request to the API and decodes a JSON response into out.
// Error responses come back as *apperror.AppError with the server's code.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.CodeUnavailable, "server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Wrap(apperror.CodeInternal, "malformed response", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var eb errorBody
	if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil || eb.Error.Code == "" {
		if resp.StatusCode >= 500 {
			return apperror.Newf(apperror.CodeUnavailable, "server returned %s", resp.Status)
		}
		return apperror.Newf(apperror.CodeInternal, "unexpected response %s", resp.Status)
	}
	return apperror.New(eb.Error.Code, eb.Error.Message)
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.MessageView, error) {
	var out []models.MessageView
	err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, msg models.OutgoingMessage) (*models.Message, error) {
	in := map[string]string{
		"content":      msg.Content,
		"message_type": string(msg.Kind),
		"client_ref":   msg.ClientRef,
	}
	var out models.Message
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(msg.ConversationID)+"/messages", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &out)
	return out, err
}

func (c *Client) StartConversation(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	var out models.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", map[string]string{"user_id": otherUserID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil, nil)
}

func (c *Client) ListNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/notifications?limit=%d", limit), nil, &out)
	return out, err
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Unread int64 `json:"unread"`
	}
	err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, &out)
	return out.Unread, err
}

func (c *Client) MarkRead(ctx context.Context, notificationID uint) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/notifications/%d/read", notificationID), nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPut, "/notifications/read-all", nil, &out)
	return out.Updated, err
}

func (c *Client) SearchProfiles(ctx context.Context, query string) ([]models.Profile, error) {
	var out []models.Profile
	err := c.do(ctx, http.MethodGet, "/profiles/search?q="+url.QueryEscape(query), nil, &out)
	return out, err
}

func (c *Client) Block(ctx context.Context, userID string) (*models.Block, error) {
	var out models.Block
	if err := c.do(ctx, http.MethodPost, "/blocks", map[string]string{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Unblock(ctx context.Context, blockID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/blocks/%d", blockID), nil, nil)
}
