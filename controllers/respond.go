package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"civicpulse-be/apperr"
	"civicpulse-be/logging"

	"github.com/gin-gonic/gin"
)

// respondError writes err as {"code", "error"} with the status its kind maps to.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.KindOf(err)
	msg := "internal server error"
	var e *apperr.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	if code == "" {
		code = "INTERNAL"
	}
	if status >= http.StatusInternalServerError {
		logging.Error(c.Request.Context(), "request failed",
			slog.String("code", string(code)),
			slog.Any("err", apperr.Loggable(err)))
	}
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": msg})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Wrap(err, apperr.KindValidationFailed, "invalid request body"))
		return false
	}
	return true
}
