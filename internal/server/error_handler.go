// file: internal/server/error_handler.go
// version: 2.0.0
// guid: 5d6e7f8a-9b0c-1d2e-3f4a-5b6c7d8e9f0a

package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse provides a consistent error response format
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Status int    `json:"status"`
}

// respondWithError sends a standardized error response and logs it with
// request context.
func respondWithError(c *gin.Context, logger *slog.Logger, statusCode int, message, code string) {
	level := slog.LevelWarn
	if statusCode >= 500 {
		level = slog.LevelError
	}
	logger.Log(c.Request.Context(), level, message,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", statusCode,
		"client_ip", c.ClientIP())

	c.JSON(statusCode, ErrorResponse{
		Error:  message,
		Code:   code,
		Status: statusCode,
	})
}

func respondWithInternalError(c *gin.Context, logger *slog.Logger, message string) {
	respondWithError(c, logger, http.StatusInternalServerError, message, "INTERNAL_ERROR")
}

func respondWithNotFound(c *gin.Context, logger *slog.Logger, message string) {
	respondWithError(c, logger, http.StatusNotFound, message, "NOT_FOUND")
}
