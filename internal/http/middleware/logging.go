// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides correlation ids, the request-scoped logger and panic
// recovery. Recommended order:
//
//  1. RequestID()
//  2. RedactingLogger(...)
//  3. Recovery()
//  4. ContextIdentity(...) then ScopedLogger()
//
// Handlers and services reach the scoped logger through LoggerFrom, e.g.
// middleware.LoggerFrom(c).Info().Str("invitation_id", id).Msg("accepted").
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
)

// inbound ids are reused only when they look like ids; anything else could
// be used to forge log lines.
var requestIDRE = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// RequestID reuses a well-formed inbound X-Request-ID or generates a UUID,
// stores it in the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !requestIDRE.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id set by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// ScopedLogger attaches a logger carrying the request id, route and, when a
// context was resolved, the user and context ids.
func ScopedLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		lc := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("route", c.FullPath())
		if uid := c.GetString("userID"); uid != "" {
			lc = lc.Str("user_id", uid)
		}
		if cid, ok := ContextIDFrom(c); ok {
			lc = lc.Str("context_id", cid)
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// ScopedLogger did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// Recovery turns panics into a JSON 500 carrying the request id and logs the
// stack. If the handler already wrote, only the status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}
