// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on unsafe requests and asks a
// lookup whether the (user, scope, key) triple already completed. Handlers
// read the outcome with GetIdempotencyKey and IsReplay; the rate limiter skips
// requests that will only replay a stored result.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a completed result already exists for the key.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions tunes key validation. Expiry belongs to the lookup.
type IdempotencyOptions struct {
	// MaxLen caps key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts key characters; nil allows token characters only.
	Pattern *regexp.Regexp
	// Scope names the operation a request performs. An empty scope skips the
	// lookup. Nil scopes by matched route.
	Scope func(c *gin.Context) string
}

// IdempotencyLookup reports whether a still-valid result exists for
// (userID, scope, key) at now.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyValidator rejects malformed keys with 400 and marks replays.
// Safe methods ignore the header. A failing lookup is logged and the request
// proceeds as a first attempt.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	scopeOf := opts.Scope
	if scopeOf == nil {
		scopeOf = (*gin.Context).FullPath
	}

	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "Idempotency-Key must be 1-" + strconv.Itoa(maxLen) + " token characters",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		scope := scopeOf(c)
		if lookup == nil || scope == "" {
			c.Next()
			return
		}
		uid := userIDFromCtx(c)
		hit, err := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC())
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).
				Str("scope", scope).
				Str("user_id", uid).
				Msg("idempotency lookup failed")
		case hit:
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// userIDFromCtx returns the user resolved by ContextIdentity, or "".
func userIDFromCtx(c *gin.Context) string {
	return c.GetString("userID")
}
