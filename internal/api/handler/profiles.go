package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) SearchProfiles(c *gin.Context) {
	profiles, err := h.Directory.Search(c.Request.Context(), c.Query("q"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.Directory.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
