package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/realtime"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WebSocketClient streams the change events of one broker subscription to a
// websocket connection. Streams are server-to-client only; inbound frames
// other than control frames are discarded.
type WebSocketClient struct {
	UserID string
	Topic  string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan models.ChangeEvent

	stream *realtime.Listener

	closeOnce   sync.Once
	quit        chan struct{}
	closeCode   int
	closeReason string
}

// Serve attaches sub to conn and registers the resulting client with the
// hub. The subscription is owned by the client from here on.
func (h *Hub) Serve(conn *websocket.Conn, userID, topic string, sub realtime.Subscription) *WebSocketClient {
	c := &WebSocketClient{
		UserID: userID,
		Topic:  topic,
		Conn:   conn,
		Hub:    h,
		Send:   make(chan models.ChangeEvent, config.SubscriptionBuffer),
		quit:   make(chan struct{}),
	}
	c.stream = realtime.Listen(sub, func(ev models.ChangeEvent) { c.Deliver(ev) })
	if !h.Register(c) {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	c.Run()
	return c
}

func (c *WebSocketClient) GetUserID() string { return c.UserID }
func (c *WebSocketClient) GetTopic() string  { return c.Topic }

func (c *WebSocketClient) Deliver(ev models.ChangeEvent) bool {
	select {
	case c.Send <- ev:
		return true
	default:
		jww.WARN.Printf("Stream client %s on %s fell behind, dropping", c.UserID, c.Topic)
		c.Close(websocket.CloseInternalServerErr, "subscriber fell behind")
		return false
	}
}

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close asks the write pump to send a close frame and tear down the
// connection. Only the first call has an effect.
func (c *WebSocketClient) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.quit)
	})
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				jww.DEBUG.Printf("Error reading from stream client %s: %v", c.UserID, err)
			}
			return
		}
	}
}

// writePump writes queued events as JSON text frames, batching whatever is
// already queued into the same frame writer, one event per line.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.stream.Close()
		c.Conn.Close()
		c.Hub.Unregister(c)
	}()

	streamDone := c.stream.Done()
	for {
		select {
		case ev := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			enc := json.NewEncoder(w)
			if err := enc.Encode(ev); err != nil {
				jww.ERROR.Printf("Error encoding event for stream client %s: %v", c.UserID, err)
			}

			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := enc.Encode(<-c.Send); err != nil {
					jww.ERROR.Printf("Error encoding event for stream client %s: %v", c.UserID, err)
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-streamDone:
			streamDone = nil
			if err := c.stream.Err(); err != nil {
				jww.WARN.Printf("Live stream for %s on %s failed: %v", c.UserID, c.Topic, err)
				c.Close(websocket.CloseInternalServerErr, "live stream failed")
			}

		case <-c.quit:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
