package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type blockRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) ListBlocks(c *gin.Context) {
	blocks, err := h.Blocks.ListBlocked(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, blocks)
}

func (h *Handler) CreateBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest(err))
		return
	}
	b, err := h.Blocks.Block(c.Request.Context(), currentUser(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) DeleteBlock(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Blocks.Unblock(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
