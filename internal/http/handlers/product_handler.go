// Product HTTP handlers.
//
//   - GET  /products                  (search and paginate the catalog)
//   - GET  /products/{id}             (detail with reviews)
//   - POST /products/{id}/reviews     (review, context required)
//   - GET  /products/{id}/sentiment   (AI eco sentiment of reviews)
//   - POST /products/{id}/image       (AI generated product image)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/catalog"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/services"
)

// ListProductsResponse wraps a page of products.
type ListProductsResponse struct {
	Products   []domain.Product `json:"products"`
	Categories []string         `json:"categories"`
	Pagination Pagination       `json:"pagination"`
}

// ProductDetailResponse is a product with seed and submitted reviews.
type ProductDetailResponse struct {
	domain.Product
	Reviews []domain.ProductReview `json:"reviews"`
}

// CreateReviewRequest is the JSON payload for reviewing a product.
type CreateReviewRequest struct {
	Rating  int    `json:"rating"  binding:"required,min=1,max=5" example:"5"`
	Comment string `json:"comment" binding:"max=2000"             example:"Sturdy and plastic-free packaging."`
}

// ListProducts godoc
// @ID          listProducts
// @Summary     List products
// @Description Text search orders by relevance; without q the catalog order is kept.
// @Tags        Products
// @Produce     json
// @Param       q          query    string  false  "Search text"  example(bamboo)
// @Param       category   query    string  false  "Category filter"  example(Kitchen)
// @Param       page       query    int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query    int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListProductsResponse
// @Router      /products [get]
func (h *Handlers) ListProducts(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total := h.Catalog.List(catalog.Query{
		Text:     strings.TrimSpace(c.Query("q")),
		Category: strings.TrimSpace(c.Query("category")),
		Page:     page,
		PageSize: pageSize,
	})
	if items == nil {
		items = []domain.Product{}
	}
	ok(c, http.StatusOK, ListProductsResponse{
		Products:   items,
		Categories: h.Catalog.Categories(),
		Pagination: newPagination(page, pageSize, int64(total)),
	})
}

// GetProduct godoc
// @ID          getProduct
// @Summary     Product detail
// @Tags        Products
// @Produce     json
// @Param       id  path     string  true  "Product id"  example(1)
// @Success     200 {object} handlers.ProductDetailResponse
// @Failure     404 {object} handlers.ErrorResponse "Product not found"
// @Router      /products/{id} [get]
func (h *Handlers) GetProduct(c *gin.Context) {
	p, found := h.Catalog.Get(c.Param("id"))
	if !found {
		failErr(c, services.ErrProductNotFound)
		return
	}
	reviews, err := h.Reviews.List(c.Request.Context(), p.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	p.Reviews = nil
	ok(c, http.StatusOK, ProductDetailResponse{Product: p, Reviews: reviews})
}

// CreateReview godoc
// @ID          createReview
// @Summary     Review a product
// @Description One review per user and product; rating is 1..5.
// @Tags        Products
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       id            path    string  true  "Product id"  example(1)
// @Param       body          body    handlers.CreateReviewRequest  true  "Review"
// @Success     201  {object} domain.Review
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Failure     409  {object} handlers.ErrorResponse "Already reviewed"
// @Router      /products/{id}/reviews [post]
func (h *Handlers) CreateReview(c *gin.Context) {
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be between 1 and 5")
		return
	}
	r, err := h.Reviews.Create(c.Request.Context(), c.GetString("userID"), c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ProductSentiment godoc
// @ID          productSentiment
// @Summary     Eco sentiment of a product's reviews
// @Tags        Products
// @Produce     json
// @Param       id  path     string  true  "Product id"  example(1)
// @Success     200 {object} ai.EcoSentiment
// @Failure     404 {object} handlers.ErrorResponse "Product not found"
// @Failure     502 {object} handlers.ErrorResponse "AI unavailable"
// @Router      /products/{id}/sentiment [get]
func (h *Handlers) ProductSentiment(c *gin.Context) {
	ctx := c.Request.Context()
	comments, err := h.Reviews.Comments(ctx, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if len(comments) == 0 {
		ok(c, http.StatusOK, ai.EcoSentiment{
			PositivePoints: []string{},
			NegativePoints: []string{},
			Summary:        "No reviews yet.",
		})
		return
	}
	out, err := h.AI.AnalyzeSentiment(ctx, comments)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// ProductImage godoc
// @ID          productImage
// @Summary     Generate a product image
// @Description Renders a studio photo of the product and returns its URL (S3 or data URI).
// @Tags        Products
// @Produce     json
// @Param       id  path     string  true  "Product id"  example(1)
// @Success     200 {object} ai.GeneratedImage
// @Failure     404 {object} handlers.ErrorResponse "Product not found"
// @Failure     502 {object} handlers.ErrorResponse "AI unavailable"
// @Router      /products/{id}/image [post]
func (h *Handlers) ProductImage(c *gin.Context) {
	p, found := h.Catalog.Get(c.Param("id"))
	if !found {
		failErr(c, services.ErrProductNotFound)
		return
	}
	img, err := h.AI.ProductImage(c.Request.Context(), "products/"+p.ID, p.Name, p.Description)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, img)
}
