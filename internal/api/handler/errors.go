package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/sissync/internal/logger"
	"github.com/timmy/sissync/internal/service"
)

// principalHeader names the caller recorded on runs and schedules.
const principalHeader = "X-User"

func principal(c *gin.Context) string {
	if user := c.GetHeader(principalHeader); user != "" {
		return user
	}
	return "api"
}

// statusFor maps service sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidScope),
		errors.Is(err, service.ErrUnknownEndpoint),
		errors.Is(err, service.ErrInvalidCron):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, service.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRunNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
