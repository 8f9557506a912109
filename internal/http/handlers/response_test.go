package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/http/middleware"
	"github.com/tbourn/go-socialcart-backend/internal/pairing"
	"github.com/tbourn/go-socialcart-backend/internal/services"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

// serveErr runs h behind RequestID and a capturing logger.
func serveErr(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, ErrorResponse, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/x", h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	r.ServeHTTP(w, req)

	var resp ErrorResponse
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json: %v", err)
		}
	}
	return w, resp, buf.String()
}

func TestFailErr_Classification(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
		logged  string
	}{
		{"conflict", services.ErrUsernameTaken, http.StatusConflict, ErrCodeConflict, services.ErrUsernameTaken.Error(), ""},
		{"wrapped gone", fmt.Errorf("accept: %w", viewer.ErrClosed), http.StatusGone, ErrCodeGone, "accept: " + viewer.ErrClosed.Error(), ""},
		{"forbidden", viewer.ErrNotRecipient, http.StatusForbidden, ErrCodeForbidden, viewer.ErrNotRecipient.Error(), ""},
		{"not found", pairing.ErrInvitationNotFound, http.StatusNotFound, ErrCodeNotFound, pairing.ErrInvitationNotFound.Error(), ""},
		{"ai down", fmt.Errorf("recommend: %w", ai.ErrUnavailable), http.StatusBadGateway, ErrCodeAIUnavailable, "the AI assistant is unavailable right now", `"level":"warn"`},
		{"unmapped", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal, "internal error", "disk on fire"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp, logs := serveErr(t, func(c *gin.Context) { failErr(c, tc.err) })
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			if resp.Code != tc.code || resp.Message != tc.message || resp.RequestID != "rid-1" {
				t.Fatalf("unexpected body: %+v", resp)
			}
			if tc.logged == "" && logs != "" {
				t.Fatalf("4xx should not log, got %s", logs)
			}
			if tc.logged != "" && !strings.Contains(logs, tc.logged) {
				t.Fatalf("expected %q in logs, got %s", tc.logged, logs)
			}
		})
	}
}

func TestFail_5xxLogsWithoutLeaking(t *testing.T) {
	w, resp, logs := serveErr(t, func(c *gin.Context) {
		Fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "store offline")
	})
	if w.Code != http.StatusServiceUnavailable || resp.Code != ErrCodeInternal {
		t.Fatalf("unexpected: %d %+v", w.Code, resp)
	}
	if !strings.Contains(logs, `"level":"error"`) || !strings.Contains(logs, `"status":503`) {
		t.Fatalf("expected error log, got %s", logs)
	}
}

func TestSuccessHelpers(t *testing.T) {
	w, _, _ := serveErr(t, func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"orderId": "o-1"})
	})
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"orderId":"o-1"`) {
		t.Fatalf("ok: %d %s", w.Code, w.Body.String())
	}

	w, _, _ = serveErr(t, noContent)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}
}
