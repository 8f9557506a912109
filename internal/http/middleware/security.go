// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, the response hardening for the JSON API.
// Responses computed for an execution context (carts, sessions, orders) carry
// private cache directives and vary on the context header so shared caches
// never serve one shopper's cart to another; catalog responses stay cacheable.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultPermissionsPolicy denies browser features the API never needs.
const DefaultPermissionsPolicy = "geolocation=(), camera=(), microphone=(), payment=()"

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days.
	HSTSMaxAge time.Duration
	// NoStore forbids caching of every response.
	NoStore bool
	// EnablePolicy sends Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
	// PermissionsPolicy overrides DefaultPermissionsPolicy.
	PermissionsPolicy string
	// Private reports whether a response is personal to the caller. Nil means
	// "a context was resolved for the request".
	Private func(*gin.Context) bool
	// Expose lists headers appended to Access-Control-Expose-Headers when set
	// on the response before the handler runs.
	Expose []string
}

// SecurityHeaders attaches the hardening headers. Always: nosniff, DENY
// framing, no-referrer.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	policy := opt.PermissionsPolicy
	if policy == "" {
		policy = DefaultPermissionsPolicy
	}
	private := opt.Private
	if private == nil {
		private = func(c *gin.Context) bool {
			_, ok := ContextIDFrom(c)
			return ok
		}
	}
	expose := opt.Expose
	if len(expose) == 0 {
		expose = []string{"X-Request-ID"}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", policy)
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		switch {
		case opt.NoStore:
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		case private(c):
			// Revalidation stays possible (orders carry an ETag).
			h.Set("Cache-Control", "private, no-cache")
			h.Add("Vary", HeaderContextID)
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		for _, name := range expose {
			if h.Get(name) != "" {
				appendExposed(h, name)
			}
		}

		c.Next()
	}
}

// appendExposed adds name to Access-Control-Expose-Headers once.
func appendExposed(h http.Header, name string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	if cur == "" {
		h.Set(hdr, name)
		return
	}
	for _, p := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(p), name) {
			return
		}
	}
	h.Set(hdr, cur+", "+name)
}

// isHTTPS reports whether the request arrived over TLS directly or through a
// proxy setting X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
