// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints:
// a structured error envelope with a stable machine-readable code, and helpers
// for common success shapes.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `error_code`.
//   - `fail()` centralizes error logging and formatting; 5xx responses are
//     logged with request context.
//
// Example error response:
//
//	HTTP/1.1 402 Payment Required
//	{
//	  "error": "wallet balance too low for this reply",
//	  "error_code": "insufficient_balance",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velora-ai/dealer-chat-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// RequestID echoes the X-Request-ID correlation header so operators can match
// a client-reported failure to the server logs. Code is one of the constants
// in errors.go; Message is safe to show to an operator. The `error` and
// `error_code` key names are part of the wire contract clients branch on.
type ErrorResponse struct {
	Message   string `json:"error"`
	Code      string `json:"error_code"`
	RequestID string `json:"request_id,omitempty"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged via the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
