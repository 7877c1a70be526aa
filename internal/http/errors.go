package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"deepfake-detector/internal/apperr"
)

// writeError maps err to its status and JSON body. Server side failures
// are logged with their cause, which never reaches the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := apperr.Response(err)
	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) writeBindError(c *gin.Context, err error) {
	msg := "Invalid request body"
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			msg = fe.Field() + " is required"
		case "email":
			msg = "Email is invalid"
		case "min":
			msg = fe.Field() + " must be at least " + fe.Param() + " characters"
		default:
			msg = fe.Field() + " is invalid"
		}
	}
	h.writeError(c, &apperr.Error{Kind: apperr.KindInvalidInput, Message: msg})
}
