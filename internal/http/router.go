// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// execution context identity, CORS, security headers, idempotency, rate
// limiting and compression.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/docs"
	"github.com/tbourn/go-socialcart-backend/internal/catalog"
	"github.com/tbourn/go-socialcart-backend/internal/config"
	"github.com/tbourn/go-socialcart-backend/internal/http/handlers"
	"github.com/tbourn/go-socialcart-backend/internal/http/middleware"
	"github.com/tbourn/go-socialcart-backend/internal/repo"
	"github.com/tbourn/go-socialcart-backend/internal/services"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

const (
	// defaultBodyLimit caps JSON request bodies.
	defaultBodyLimit = 1 << 20
	// uploadBodyLimit caps multipart image uploads.
	uploadBodyLimit = 10 << 20
	// aiRequestCost is the rate-limit weight of a model-backed request.
	aiRequestCost = 5
)

// App holds the services the HTTP layer is wired to. Users and Orders are
// shared with the context hub, so they are built once by the caller.
type App struct {
	DB      *gorm.DB
	Users   *services.UserService
	Reviews *services.ReviewService
	Orders  *services.CheckoutService
	Catalog *catalog.Catalog
	Hub     *viewer.Hub
	AI      handlers.AIService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), context identity,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Context identity (X-Context-ID → userID for everything below)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
//  11. Gzip (the WebSocket event stream is excluded)
func RegisterRoutes(r *gin.Engine, app App, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	if apiBase == "/" {
		apiBase = ""
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
			middleware.HeaderContextID,
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limits (1 MiB, larger for image uploads)
	r.Use(limitBody(defaultBodyLimit, map[string]int64{
		apiBase + "/ai/visual-search": uploadBodyLimit,
	}))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Resolve the execution context, if any
	r.Use(middleware.ContextIdentity(func(id string) (string, bool) {
		v, err := app.Hub.Get(id)
		if err != nil {
			return "", false
		}
		return v.UserID(), true
	}))
	r.Use(middleware.ScopedLogger())

	// 8) Idempotency validation (before rate limiting). Only checkout keeps
	// replay records.
	checkoutPath := apiBase + "/checkout"
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope: func(c *gin.Context) string {
				if c.FullPath() == checkoutPath {
					return services.CheckoutScope
				}
				return ""
			},
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			if userID == "" {
				return false, nil
			}
			_, err := repo.GetIdempotency(ctx, app.DB, userID, scope, key, now)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return false, nil
			case err != nil:
				return false, err
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP. Model-backed routes spend
	// more tokens.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(),
		middleware.WithCost(middleware.CostByPrefix(aiRequestCost,
			apiBase+"/ai/",
			apiBase+"/products/:id/sentiment",
			apiBase+"/products/:id/image",
		)),
	)
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderContextID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderContextID, handlers.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// 11) Compression; hijacked WebSocket connections must not be wrapped.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/contexts/[^/]+/events$`}),
		gzip.WithExcludedPaths([]string{"/metrics"}),
	))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "contexts": app.Hub.Len()})
	})

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Deps{
		Users:                app.Users,
		Reviews:              app.Reviews,
		Orders:               app.Orders,
		Catalog:              app.Catalog,
		Hub:                  app.Hub,
		AI:                   app.AI,
		EventsAllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Users
		api.POST("/users", h.Signup)
		api.GET("/users", h.ListUsers)
		api.GET("/users/:username", h.GetUser)
		api.GET("/leaderboard", h.Leaderboard)

		// Contexts
		api.POST("/contexts", h.OpenContext)
		api.GET("/contexts/:id", h.GetContext)
		api.DELETE("/contexts/:id", h.CloseContext)
		api.GET("/contexts/:id/events", h.ContextEvents)

		// Catalog
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.GET("/products/:id/sentiment", h.ProductSentiment)
		api.POST("/products/:id/image", h.ProductImage)

		// Stateless AI flows
		api.POST("/ai/visual-search", h.VisualSearch)
		api.POST("/ai/eco-plan", h.EcoPlan)
		api.POST("/ai/speech", h.Speech)
	}

	// Context-scoped API
	scoped := api.Group("", middleware.RequireContext())
	{
		scoped.PATCH("/users/me", h.UpdateMe)
		scoped.POST("/users/:id/follow", h.ToggleFollow)
		scoped.POST("/products/:id/reviews", h.CreateReview)

		// Cart and favorites
		scoped.GET("/cart", h.GetCart)
		scoped.DELETE("/cart", h.ClearCart)
		scoped.POST("/cart/items", h.AddCartItem)
		scoped.PUT("/cart/items/:productId", h.UpdateCartItem)
		scoped.DELETE("/cart/items/:productId", h.RemoveCartItem)
		scoped.GET("/favorites", h.ListFavorites)
		scoped.POST("/favorites/:productId", h.ToggleFavorite)

		// Checkout
		scoped.GET("/checkout/options", h.CheckoutOptions)
		scoped.POST("/checkout", h.Checkout)
		scoped.GET("/orders", h.ListOrders)
		scoped.GET("/orders/:id", h.GetOrder)

		// Pair shopping
		scoped.GET("/session", h.GetSession)
		scoped.DELETE("/session", h.EndSession)
		scoped.GET("/invitations", h.ListInvitations)
		scoped.POST("/invitations", h.SendInvitation)
		scoped.POST("/invitations/:id/accept", h.AcceptInvitation)
		scoped.POST("/invitations/:id/decline", h.DeclineInvitation)
		scoped.POST("/navigate", h.Navigate)
		scoped.GET("/conversations/:userId/messages", h.ListMessages)
		scoped.POST("/conversations/:userId/messages", h.SendMessage)

		// Context-bound AI flows
		scoped.POST("/ai/recommendations", h.Recommendations)
		scoped.POST("/ai/voice", h.Voice)
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader, or to the override registered for the
// matched route. Requests exceeding the cap will cause downstream body reads
// to error.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := overrides[c.FullPath()]; ok {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
