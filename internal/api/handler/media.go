package handler

import (
	"net/http"

	"nexochat/backend/internal/catalog"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Stickers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stickers": catalog.Stickers()})
}

func (h *Handler) GIFs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"gifs": catalog.GIFs()})
}
