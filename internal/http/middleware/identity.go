// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the execution context named by the X-Context-ID header
// and exposes its user to the rest of the chain under "userID", the key the
// logger, rate limiter and idempotency middleware already read.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderContextID names the execution context a request acts through.
const HeaderContextID = "X-Context-ID"

const ctxKeyContextID = "contextID"

// ContextLookup returns the user owning execution context id.
type ContextLookup func(id string) (userID string, ok bool)

// ContextIdentity stashes the context id and its user when the header names
// an open context. Unknown or missing ids pass through anonymously.
func ContextIdentity(lookup ContextLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderContextID))
		if id != "" && lookup != nil {
			if uid, ok := lookup(id); ok {
				c.Set(ctxKeyContextID, id)
				c.Set("userID", uid)
			}
		}
		c.Next()
	}
}

// RequireContext aborts with 401 unless ContextIdentity resolved a context.
func RequireContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ContextIDFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "context_required",
				"message":    "open a context and send its id in " + HeaderContextID,
			})
			return
		}
		c.Next()
	}
}

// ContextIDFrom returns the resolved execution context id.
func ContextIDFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyContextID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}
