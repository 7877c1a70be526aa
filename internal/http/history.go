package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listHistory(c *gin.Context) {
	list, err := h.detections.List(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detectionsToResponse(list))
}

func (h *Handler) getHistory(c *gin.Context) {
	d, err := h.detections.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detectionToResponse(*d))
}

func (h *Handler) deleteHistory(c *gin.Context) {
	if err := h.detections.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Detection deleted successfully"})
}
