package handler

import (
	"net/http"

	"nexochat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type startConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type sendMessageRequest struct {
	Content   string             `json:"content" binding:"required"`
	Kind      models.MessageKind `json:"message_type"`
	ClientRef string             `json:"client_ref" binding:"omitempty,max=64"`
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.Conversations.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) StartConversation(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest(err))
		return
	}
	conv, err := h.Conversations.FindOrCreate(c.Request.Context(), currentUser(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.Conversations.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.Conversations.GetForParticipant(ctx, id, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	msgs, err := h.Messages.List(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest(err))
		return
	}
	msg, err := h.Messages.Send(c.Request.Context(), models.OutgoingMessage{
		ConversationID: c.Param("id"),
		SenderID:       currentUser(c),
		Content:        req.Content,
		Kind:           req.Kind,
		ClientRef:      req.ClientRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
