package handler

import (
	"net/http"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
)

// Stream names accepted by /ws.
const (
	StreamMessages      = "messages"
	StreamConversations = "conversations"
	StreamNotifications = "notifications"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Streams are authenticated by token, not by cookie.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket streams the change events of one topic. The broker
// subscription is opened before the upgrade so that a client whose upgrade
// succeeded cannot miss an event committed after it.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)

	topic, err := h.streamTopic(c, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	sub, err := h.Broker.Subscribe(ctx, topic)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		_ = sub.Close()
		jww.DEBUG.Printf("Websocket upgrade failed for %s: %v", userID, err)
		return
	}

	h.Hub.Serve(conn, userID, topic, sub)
}

func (h *Handler) streamTopic(c *gin.Context, userID string) (string, error) {
	switch c.Query("stream") {
	case StreamMessages:
		id := c.Query("conversation_id")
		if id == "" {
			return "", apperror.InvalidArg("conversation_id is required")
		}
		if _, err := h.Conversations.GetForParticipant(c.Request.Context(), id, userID); err != nil {
			return "", err
		}
		return realtime.MessagesTopic(id), nil
	case StreamConversations:
		return realtime.ConversationsTopic(userID), nil
	case StreamNotifications:
		return realtime.NotificationsTopic(userID), nil
	}
	return "", apperror.InvalidArg("stream must be one of messages, conversations, notifications")
}
