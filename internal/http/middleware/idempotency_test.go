package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	userID, scope, key string
	now                time.Time
}

// recordingLookup answers with hit/err and records each call.
func recordingLookup(hit bool, err error) (IdempotencyLookup, *[]lookupCall) {
	var calls []lookupCall
	return func(_ context.Context, userID, scope, key string, now time.Time) (bool, error) {
		calls = append(calls, lookupCall{userID, scope, key, now})
		return hit, err
	}, &calls
}

type idemOutcome struct {
	key            string
	replay, bypass bool
}

// serveIdem runs one request through IdempotencyValidator and reports what the
// handler saw.
func serveIdem(t *testing.T, opts IdempotencyOptions, lookup IdempotencyLookup, method, route, path, key string, pre ...gin.HandlerFunc) (*httptest.ResponseRecorder, idemOutcome) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var out idemOutcome

	r := gin.New()
	r.Use(pre...)
	r.Use(IdempotencyValidator(opts, lookup))
	r.Handle(method, route, func(c *gin.Context) {
		out.key, _ = GetIdempotencyKey(c)
		out.replay = IsReplay(c)
		out.bypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w, out
}

func TestIdempotencyValidator_KeyValidation(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]+$`)
	cases := []struct {
		name   string
		opts   IdempotencyOptions
		key    string
		status int
		stored string
	}{
		{"absent", IdempotencyOptions{}, "", http.StatusOK, ""},
		{"default pattern", IdempotencyOptions{}, "order-1:retry~2", http.StatusOK, "order-1:retry~2"},
		{"trimmed", IdempotencyOptions{}, "  k1  ", http.StatusOK, "k1"},
		{"space inside", IdempotencyOptions{}, "k 1", http.StatusBadRequest, ""},
		{"default length", IdempotencyOptions{}, strings.Repeat("a", 201), http.StatusBadRequest, ""},
		{"custom length", IdempotencyOptions{MaxLen: 5}, "abcdef", http.StatusBadRequest, ""},
		{"custom pattern", IdempotencyOptions{Pattern: digits}, "abc123", http.StatusBadRequest, ""},
		{"custom pattern ok", IdempotencyOptions{Pattern: digits}, "123", http.StatusOK, "123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, out := serveIdem(t, tc.opts, nil, http.MethodPost, "/checkout", "/checkout", tc.key)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if tc.status == http.StatusBadRequest && !strings.Contains(w.Body.String(), `"bad_idempotency_key"`) {
				t.Fatalf("unexpected body: %s", w.Body.String())
			}
			if out.key != tc.stored {
				t.Fatalf("stored key %q want %q", out.key, tc.stored)
			}
		})
	}
}

func TestIdempotencyValidator_SafeMethodsIgnoreHeader(t *testing.T) {
	lookup, calls := recordingLookup(true, nil)
	w, out := serveIdem(t, IdempotencyOptions{}, lookup, http.MethodGet, "/orders", "/orders", "has space")
	if w.Code != http.StatusOK {
		t.Fatalf("GET with odd key = %d", w.Code)
	}
	if out.key != "" || out.replay || len(*calls) != 0 {
		t.Fatalf("GET should ignore the header: %+v calls=%d", out, len(*calls))
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	checkoutOnly := IdempotencyOptions{Scope: func(c *gin.Context) string {
		if c.FullPath() == "/checkout" {
			return "checkout"
		}
		return ""
	}}
	asUser := func(c *gin.Context) { c.Set("userID", "u9"); c.Next() }

	t.Run("hit marks replay and bypass", func(t *testing.T) {
		lookup, calls := recordingLookup(true, nil)
		_, out := serveIdem(t, checkoutOnly, lookup, http.MethodPost, "/checkout", "/checkout", "k-9", asUser)
		if !out.replay || !out.bypass {
			t.Fatalf("expected replay and bypass: %+v", out)
		}
		if len(*calls) != 1 {
			t.Fatalf("calls=%d", len(*calls))
		}
		got := (*calls)[0]
		if got.userID != "u9" || got.scope != "checkout" || got.key != "k-9" || got.now.Location() != time.UTC {
			t.Fatalf("unexpected lookup args: %+v", got)
		}
	})

	t.Run("miss", func(t *testing.T) {
		lookup, _ := recordingLookup(false, nil)
		_, out := serveIdem(t, checkoutOnly, lookup, http.MethodPost, "/checkout", "/checkout", "k-9", asUser)
		if out.replay || out.bypass || out.key != "k-9" {
			t.Fatalf("unexpected outcome on miss: %+v", out)
		}
	})

	t.Run("unscoped route skips lookup", func(t *testing.T) {
		lookup, calls := recordingLookup(true, nil)
		_, out := serveIdem(t, checkoutOnly, lookup, http.MethodPost, "/cart", "/cart", "k-1", asUser)
		if len(*calls) != 0 || out.replay {
			t.Fatalf("lookup ran for unscoped route: %+v", out)
		}
	})

	t.Run("default scope is the route", func(t *testing.T) {
		lookup, calls := recordingLookup(false, nil)
		serveIdem(t, IdempotencyOptions{}, lookup, http.MethodPost, "/orders/:id/retry", "/orders/o42/retry", "k-2")
		if len(*calls) != 1 || (*calls)[0].scope != "/orders/:id/retry" || (*calls)[0].userID != "" {
			t.Fatalf("unexpected calls: %+v", *calls)
		}
	})

	t.Run("error is logged and not a replay", func(t *testing.T) {
		buf := withCapturedLogger(t)
		lookup, _ := recordingLookup(true, errors.New("db closed"))
		w, out := serveIdem(t, checkoutOnly, lookup, http.MethodPost, "/checkout", "/checkout", "k-3", asUser)
		if w.Code != http.StatusOK || out.replay || out.bypass {
			t.Fatalf("error should fall through: %d %+v", w.Code, out)
		}
		if !strings.Contains(buf.String(), "idempotency lookup failed") || !strings.Contains(buf.String(), "db closed") {
			t.Fatalf("expected warning, got %s", buf.String())
		}
	})
}

func TestIdempotencyAccessors_WrongTypes(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ctxKeyIdemKey, 123)
	c.Set(ctxKeyIdemReplay, "yes")
	c.Set("userID", 42)
	if k, ok := GetIdempotencyKey(c); ok || k != "" {
		t.Fatalf("non-string key leaked: %q", k)
	}
	if IsReplay(c) {
		t.Fatal("non-bool replay flag read as true")
	}
	if userIDFromCtx(c) != "" {
		t.Fatal("non-string user id leaked")
	}
}
