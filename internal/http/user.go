package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type updateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"omitempty,email"`
}

func (h *Handler) profile(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.users.GetByID(ctx, userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	stats, err := h.stats.Stats(ctx, user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{
		User:  userToResponse(user),
		Stats: statsToResponse(stats),
	})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID(c), req.Username, req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(user))
}

func (h *Handler) userStats(c *gin.Context) {
	ctx := c.Request.Context()
	id := userID(c)

	stats, err := h.stats.Stats(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	recent, err := h.stats.Recent(ctx, id, h.recentLimit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, UserStatsResponse{
		Stats:            statsToResponse(stats),
		RecentDetections: detectionsToResponse(recent),
	})
}
