package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestScrub(t *testing.T) {
	cases := map[string]string{
		"": "",
		"/api/v1/orders/123e4567-e89b-12d3-a456-426614174000": "/api/v1/orders/[REDACTED:id]",
		"mail jane@example.com":                               "mail [REDACTED:email]",
		"call 555-123-4567":                                   "call [REDACTED:phone]",
		"q=bamboo&page=2":                                     "q=bamboo&page=2",
	}
	for in, want := range cases {
		if got := scrub(in); got != want {
			t.Fatalf("scrub(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestRedactingLogger_RedactsAndAttachesIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header(requestIDHeader, "rid-resp")
		c.Set("userID", "u1")
		c.Set(ctxKeyIdemReplay, true)
		c.Next()
	})
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{HeaderContextID}}))
	r.GET("/api/v1/orders/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/123e4567-e89b-12d3-a456-426614174000?note=jane@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(HeaderContextID, "ctx-secret")
	req.Header.Set("X-Note", "phone 555-123-4567")
	req.Header.Set(requestIDHeader, "rid-req")
	r.ServeHTTP(httptest.NewRecorder(), req)

	recs := decodeLines(t, buf)
	if len(recs) != 1 {
		t.Fatalf("want 1 log line, got %d", len(recs))
	}
	rec := recs[0]
	checks := map[string]any{
		"level":      "info",
		"request_id": "rid-resp",
		"route":      "/api/v1/orders/:id",
		"path":       "/api/v1/orders/[REDACTED:id]",
		"query":      "note=[REDACTED:email]",
		"user_id":    "u1",
		"replay":     true,
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Fatalf("%s = %v; want %v (record %v)", k, rec[k], want, rec)
		}
	}
	headers, _ := rec["headers"].(map[string]any)
	if headers["Authorization"] != "[REDACTED]" || headers[HeaderContextID] != "[REDACTED]" {
		t.Fatalf("masked headers leaked: %v", headers)
	}
	if headers["X-Note"] != "phone [REDACTED:phone]" {
		t.Fatalf("X-Note = %v", headers["X-Note"])
	}
}

func TestRedactingLogger_LevelsAndSkip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{SkipPaths: []string{"/health"}}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/error", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, p := range []string{"/health", "/warn", "/error", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set(requestIDHeader, "rid"+p)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	recs := decodeLines(t, buf)
	if len(recs) != 3 {
		t.Fatalf("health should be skipped; got %d lines", len(recs))
	}
	want := []struct{ level, rid, route string }{
		{"warn", "rid/warn", "/warn"},
		{"error", "rid/error", "/error"},
		{"warn", "rid/missing", "unmatched"},
	}
	for i, w := range want {
		if recs[i]["level"] != w.level || recs[i]["request_id"] != w.rid || recs[i]["route"] != w.route {
			t.Fatalf("line %d = %v; want %+v", i, recs[i], w)
		}
		if _, ok := recs[i]["user_id"]; ok {
			t.Fatalf("anonymous request logged a user: %v", recs[i])
		}
	}
}
