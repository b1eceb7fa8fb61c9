// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kre8/diagram-relay/internal/model"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendStoreError maps store errors onto the error envelope.
func sendStoreError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, model.ErrRequestNotFound):
		sendError(c, http.StatusNotFound, "REQUEST_NOT_FOUND", "Request "+c.Param("id")+" not found")
	case errors.Is(err, model.ErrRequestCompleted):
		sendError(c, http.StatusConflict, "REQUEST_COMPLETED", "Request "+c.Param("id")+" already completed")
	case errors.Is(err, model.ErrCodeRequired), errors.Is(err, model.ErrInvalidRetention):
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+action+": "+err.Error())
	}
}
