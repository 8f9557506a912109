// Package handlers provides HTTP handler implementations for the public API.
//
// Every error leaves through fail or failErr as an ErrorResponse carrying a
// stable code; successes go through ok and noContent.
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "conflict",
//	  "message": "a pending invitation to this user already exists"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-socialcart-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// failErr maps a service error to its status and code (see errorTable) and
// aborts. Unmapped errors become 500s; their text is logged, not returned.
func failErr(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	switch {
	case code == ErrCodeAIUnavailable:
		middleware.LoggerFrom(c).Warn().Err(err).Msg("ai call failed")
		msg = "the AI assistant is unavailable right now"
	case status >= http.StatusInternalServerError:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		msg = "internal error"
	}
	fail(c, status, code, msg)
}

// Fail is fail for callers outside the package, such as router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as JSON.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
