// Package handler exposes the messaging services over HTTP and websocket
// streams.
package handler

import (
	"net/http"

	"nexochat/backend/internal/blocking"
	"nexochat/backend/internal/chathub"
	"nexochat/backend/internal/conversation"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/message"
	"nexochat/backend/internal/notification"
	"nexochat/backend/internal/realtime"

	"github.com/gin-gonic/gin"
)

// Services are the core services the handlers call.
type Services struct {
	Directory     *directory.Service
	Blocks        *blocking.Registry
	Conversations *conversation.Store
	Messages      *message.Channel
	Notifications *notification.Fanout
	Broker        realtime.Broker
}

// Handler holds the services, the stream hub and the token verifier.
type Handler struct {
	Services
	Hub  *chathub.Hub
	Auth *Authenticator
}

func NewHandler(svc Services, hub *chathub.Hub, auth *Authenticator) *Handler {
	return &Handler{Services: svc, Hub: hub, Auth: auth}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)

	r.GET("/ws", h.RequireAuth(), h.ServeWebSocket)

	api := r.Group("/api/v1", h.RequireAuth())

	api.GET("/profiles/search", h.SearchProfiles)
	api.GET("/profiles/:id", h.GetProfile)

	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations", h.StartConversation)
	api.DELETE("/conversations/:id", h.DeleteConversation)
	api.GET("/conversations/:id/messages", h.ListMessages)
	api.POST("/conversations/:id/messages", h.SendMessage)

	api.GET("/blocks", h.ListBlocks)
	api.POST("/blocks", h.CreateBlock)
	api.DELETE("/blocks/:id", h.DeleteBlock)

	api.GET("/notifications", h.ListNotifications)
	api.GET("/notifications/unread-count", h.UnreadCount)
	api.PUT("/notifications/read-all", h.MarkAllRead)
	api.PUT("/notifications/:id/read", h.MarkRead)

	api.GET("/media/stickers", h.Stickers)
	api.GET("/media/gifs", h.GIFs)
}

// Router builds a gin engine with every route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}
	h.Register(r)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "streams": h.Hub.Count()})
}
