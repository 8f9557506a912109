package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestContextIdentity_ResolvesKnownContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ContextIdentity(func(id string) (string, bool) {
		if id == "ctx-1" {
			return "u1", true
		}
		return "", false
	}))
	r.GET("/who", RequireContext(), func(c *gin.Context) {
		id, _ := ContextIDFrom(c)
		c.String(http.StatusOK, id+"/"+c.GetString("userID"))
	})
	r.GET("/open", func(c *gin.Context) {
		if _, ok := ContextIDFrom(c); ok {
			t.Fatalf("unknown context must stay anonymous")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderContextID, " ctx-1 ")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ctx-1/u1" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderContextID, "stale")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown context, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set(HeaderContextID, "stale")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("anonymous route: got %d", w.Code)
	}
}
