// Package handlers exposes the SocialCart REST API.
//
// Handlers are transport-thin: they validate input, resolve the calling
// execution context, call application services and translate results into
// HTTP responses (including conditional responses). Context-scoped routes
// act through the viewer named by the X-Context-ID header.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/catalog"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/http/middleware"
	"github.com/tbourn/go-socialcart-backend/internal/services"
	"github.com/tbourn/go-socialcart-backend/internal/utils"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

//
// Service contracts (context-aware)
//

// UserService defines the user directory operations consumed by handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type UserService interface {
	Signup(ctx context.Context, name, username string) (*domain.User, error)
	Login(ctx context.Context, username string) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.User, int64, error)
	UpdateProfile(ctx context.Context, id string, upd services.ProfileUpdate) (*domain.User, error)
	ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, *domain.User, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.User, error)
}

// ReviewService defines product review operations.
type ReviewService interface {
	Create(ctx context.Context, userID, productID string, rating int, comment string) (*domain.Review, error)
	List(ctx context.Context, productID string) ([]domain.ProductReview, error)
	Comments(ctx context.Context, productID string) ([]string, error)
}

// OrderService defines order lookups; placement goes through the viewer.
type OrderService interface {
	Replay(ctx context.Context, userID, idemKey string) (*domain.Order, bool, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int64, error)
	Get(ctx context.Context, userID, id string) (*domain.Order, error)
	Version(ctx context.Context, userID string) (domain.OrdersVersion, error)
}

// Catalog serves read-only products.
type Catalog interface {
	Get(id string) (domain.Product, bool)
	List(q catalog.Query) ([]domain.Product, int)
	All() []domain.Product
	FindByName(name string) (domain.Product, bool)
	Categories() []string
}

// ContextHub opens, resolves and closes execution contexts.
type ContextHub interface {
	Open(ctx context.Context, user *domain.User) (*viewer.Viewer, error)
	Get(id string) (*viewer.Viewer, error)
	Close(ctx context.Context, id string) error
}

// AIService is the set of AI flows reachable over HTTP.
type AIService interface {
	viewer.Assistant
	AnalyzeSentiment(ctx context.Context, reviews []string) (ai.EcoSentiment, error)
	VisualSearch(ctx context.Context, image []byte, products []ai.ProductRef) (ai.VisualMatch, error)
	PlanEvent(ctx context.Context, eventType string, productNames []string) (ai.EcoPlan, error)
	ProductImage(ctx context.Context, key, name, description string) (ai.GeneratedImage, error)
}

//
// Handler wiring
//

// Deps lists the services Handlers depends on.
type Deps struct {
	Users   UserService
	Reviews ReviewService
	Orders  OrderService
	Catalog Catalog
	Hub     ContextHub
	AI      AIService
	// EventsAllowedOrigins is passed to the WebSocket origin check; empty
	// accepts any origin.
	EventsAllowedOrigins []string
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	Deps
}

// New constructs and returns a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{Deps: d}
}

// currentViewer returns the viewer resolved by the identity middleware. It
// aborts with the mapped error when the context has gone away in between.
func (h *Handlers) currentViewer(c *gin.Context) (*viewer.Viewer, bool) {
	id, found := middleware.ContextIDFrom(c)
	if !found {
		fail(c, 401, ErrCodeUnauthorized, "open a context and send its id in "+middleware.HeaderContextID)
		return nil, false
	}
	v, err := h.Hub.Get(id)
	if err != nil {
		failErr(c, err)
		return nil, false
	}
	return v, true
}

//
// DTOs shared by several endpoints
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// NoticeResponse carries a user-facing notice.
type NoticeResponse struct {
	Notice domain.Notice `json:"notice"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}
