package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/coordinator"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
)

const closeWait = time.Second

// wsStream calls onChange once per frame received on a /ws stream. Frames
// carry change events, but the coordinator only needs to know something
// changed.
type wsStream struct {
	conn     *websocket.Conn
	onChange func()

	mu     sync.Mutex // held while onChange runs
	closed bool
	err    error

	once sync.Once
	done chan struct{}
}

func (c *Client) WatchMessages(ctx context.Context, conversationID string, onChange func()) (coordinator.Stream, error) {
	return c.watch(ctx, url.Values{"stream": {"messages"}, "conversation_id": {conversationID}}, onChange)
}

func (c *Client) WatchConversations(ctx context.Context, onChange func()) (coordinator.Stream, error) {
	return c.watch(ctx, url.Values{"stream": {"conversations"}}, onChange)
}

func (c *Client) WatchNotifications(ctx context.Context, onChange func()) (coordinator.Stream, error) {
	return c.watch(ctx, url.Values{"stream": {"notifications"}}, onChange)
}

// watch returns once the server has accepted the stream, which it only does
// after its own subscription is open.
func (c *Client) watch(ctx context.Context, query url.Values, onChange func()) (coordinator.Stream, error) {
	u := c.baseURL + "/ws?" + query.Encode()
	u = "ws" + strings.TrimPrefix(u, "http")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.Dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, decodeError(resp)
			}
		}
		return nil, apperror.Wrap(apperror.CodeUnavailable, "stream unreachable", err)
	}

	s := &wsStream{conn: conn, onChange: onChange, done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

func (s *wsStream) readLoop() {
	defer close(s.done)

	for {
		_, _, err := s.conn.ReadMessage()
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.err = apperror.Wrap(apperror.CodeUnavailable, "live stream lost", err)
			s.mu.Unlock()
			jww.DEBUG.Printf("Stream closed by server: %v", err)
			_ = s.conn.Close()
			return
		}
		s.onChange()
		s.mu.Unlock()
	}
}

func (s *wsStream) Done() <-chan struct{} { return s.done }

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends a normal close frame and drops the connection. onChange is
// never called after Close returns.
func (s *wsStream) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		_ = s.conn.Close()
	})
}
