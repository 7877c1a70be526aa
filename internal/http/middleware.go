package http

import (
	"github.com/gin-gonic/gin"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/auth"
)

const (
	ctxUserID = "userID"
	ctxToken  = "token"
)

func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			h.writeError(c, apperr.New(apperr.KindUnauthorized, "No token, authorization denied"))
			return
		}
		userID, err := h.users.Verify(token)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxToken, token)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
