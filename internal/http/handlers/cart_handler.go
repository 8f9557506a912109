// Cart, favorites and checkout HTTP handlers. Every route here is
// context-scoped: the cart is the context's current partition, which is the
// shared pair partition while a session is active.
//
//   - GET    /cart                     (current partition)
//   - POST   /cart/items               (add, earns eco points)
//   - PUT    /cart/items/{productId}   (set quantity; 0 removes)
//   - DELETE /cart/items/{productId}   (remove line)
//   - DELETE /cart                     (clear)
//   - GET    /favorites                (list)
//   - POST   /favorites/{productId}    (toggle)
//   - GET    /checkout/options         (delivery options priced for the cart)
//   - POST   /checkout                 (place order, Idempotency-Key aware)
//   - GET    /orders                   (list, paginated, ETag support)
//   - GET    /orders/{id}              (one order)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/tbourn/go-socialcart-backend/internal/cart"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/http/middleware"
	"github.com/tbourn/go-socialcart-backend/internal/services"
)

// HeaderIdempotencyReplayed marks a response served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// CartResponse is a cart snapshot with its checkout figures.
type CartResponse struct {
	cart.Cart
	Count         int   `json:"count"`
	SubtotalCents int64 `json:"subtotal_cents"`
}

func newCartResponse(c cart.Cart) CartResponse {
	if c.Lines == nil {
		c.Lines = []domain.CartLine{}
	}
	return CartResponse{Cart: c, Count: c.Count(), SubtotalCents: c.SubtotalCents()}
}

// AddCartItemRequest adds units of a product.
type AddCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"          example:"5"`
	Quantity  int    `json:"quantity"   binding:"omitempty,min=1,max=99" example:"2"`
}

// AddCartItemResponse reports the cart and the eco points earned.
type AddCartItemResponse struct {
	Cart         CartResponse `json:"cart"`
	PointsEarned int          `json:"points_earned"`
}

// UpdateCartItemRequest sets a line quantity.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,max=99" example:"3"`
}

// FavoritesResponse lists favorite product ids.
type FavoritesResponse struct {
	ProductIDs []string `json:"product_ids"`
}

// ToggleFavoriteResponse reports the favorite state after a toggle.
type ToggleFavoriteResponse struct {
	Favorite   bool     `json:"favorite"`
	ProductIDs []string `json:"product_ids"`
}

// CheckoutOption is a delivery option with the cart priced for it.
type CheckoutOption struct {
	cart.DeliveryOption
	Totals cart.Totals `json:"totals"`
}

// CheckoutOptionsResponse lists delivery options for the current cart.
type CheckoutOptionsResponse struct {
	Cart    CartResponse     `json:"cart"`
	Options []CheckoutOption `json:"options"`
}

// CheckoutRequest selects the delivery option.
type CheckoutRequest struct {
	Delivery string `json:"delivery" binding:"omitempty,oneof=eco standard express" example:"eco"`
}

// ListOrdersResponse wraps a page of orders.
type ListOrdersResponse struct {
	Orders     []domain.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

// GetCart godoc
// @ID          getCart
// @Summary     Current cart
// @Tags        Cart
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     200  {object} handlers.CartResponse
// @Failure     401  {object} handlers.ErrorResponse "Context required"
// @Router      /cart [get]
func (h *Handlers) GetCart(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ct, err := v.Cart(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newCartResponse(ct))
}

// AddCartItem godoc
// @ID          addCartItem
// @Summary     Add to cart
// @Description Adds units of a product (default 1). Same product lines merge. Eco points are credited per unit.
// @Tags        Cart
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       body          body    handlers.AddCartItemRequest  true  "Item"
// @Success     200  {object} handlers.AddCartItemResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Router      /cart/items [post]
func (h *Handlers) AddCartItem(c *gin.Context) {
	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product_id required, quantity 1-99")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ct, points, err := v.AddToCart(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AddCartItemResponse{Cart: newCartResponse(ct), PointsEarned: points})
}

// UpdateCartItem godoc
// @ID          updateCartItem
// @Summary     Set line quantity
// @Description A quantity of zero or less removes the line.
// @Tags        Cart
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       productId     path    string  true  "Product id"  example(5)
// @Param       body          body    handlers.UpdateCartItemRequest  true  "Quantity"
// @Success     200  {object} handlers.CartResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /cart/items/{productId} [put]
func (h *Handlers) UpdateCartItem(c *gin.Context) {
	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "quantity required (max 99)")
		return
	}
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ct, err := v.UpdateCartItem(c.Request.Context(), c.Param("productId"), *req.Quantity)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newCartResponse(ct))
}

// RemoveCartItem godoc
// @ID          removeCartItem
// @Summary     Remove a line
// @Tags        Cart
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       productId     path    string  true  "Product id"  example(5)
// @Success     200  {object} handlers.CartResponse
// @Router      /cart/items/{productId} [delete]
func (h *Handlers) RemoveCartItem(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ct, err := v.RemoveCartItem(c.Request.Context(), c.Param("productId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newCartResponse(ct))
}

// ClearCart godoc
// @ID          clearCart
// @Summary     Empty the cart
// @Tags        Cart
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     200  {object} handlers.CartResponse
// @Router      /cart [delete]
func (h *Handlers) ClearCart(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ct, err := v.ClearCart(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newCartResponse(ct))
}

// ListFavorites godoc
// @ID          listFavorites
// @Summary     Favorite products
// @Tags        Favorites
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     200  {object} handlers.FavoritesResponse
// @Router      /favorites [get]
func (h *Handlers) ListFavorites(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ids, err := v.Favorites(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FavoritesResponse{ProductIDs: ids})
}

// ToggleFavorite godoc
// @ID          toggleFavorite
// @Summary     Toggle a favorite
// @Tags        Favorites
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       productId     path    string  true  "Product id"  example(3)
// @Success     200  {object} handlers.ToggleFavoriteResponse
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Router      /favorites/{productId} [post]
func (h *Handlers) ToggleFavorite(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	added, ids, err := v.ToggleFavorite(c.Request.Context(), c.Param("productId"))
	if err != nil {
		failErr(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	ok(c, http.StatusOK, ToggleFavoriteResponse{Favorite: added, ProductIDs: ids})
}

// CheckoutOptions godoc
// @ID          checkoutOptions
// @Summary     Delivery options for the cart
// @Tags        Checkout
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     200  {object} handlers.CheckoutOptionsResponse
// @Router      /checkout/options [get]
func (h *Handlers) CheckoutOptions(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ct, err := v.Cart(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	opts := lo.Map(cart.DeliveryOptions, func(o cart.DeliveryOption, _ int) CheckoutOption {
		return CheckoutOption{DeliveryOption: o, Totals: cart.ComputeTotals(ct, o)}
	})
	ok(c, http.StatusOK, CheckoutOptionsResponse{Cart: newCartResponse(ct), Options: opts})
}

// Checkout godoc
// @ID          checkout
// @Summary     Place an order
// @Description Orders the current partition, credits the delivery bonus and clears the cart. A repeated Idempotency-Key returns the stored order with Idempotency-Replayed: true.
// @Tags        Checkout
// @Accept      json
// @Produce     json
// @Param       X-Context-ID     header  string  true   "Execution context id"
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"  example(2d1f7a0c-checkout)
// @Param       body             body    handlers.CheckoutRequest  false  "Delivery option (default standard)"
// @Success     201  {object} domain.Order
// @Success     200  {object} domain.Order  "Replayed"
// @Header      200  {string} Idempotency-Replayed  "true"
// @Failure     400  {object} handlers.ErrorResponse "Empty cart or unknown delivery"
// @Failure     500  {object} handlers.ErrorResponse "Checkout failed"
// @Router      /checkout [post]
func (h *Handlers) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "delivery must be eco, standard or express")
			return
		}
	}
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	key, _ := middleware.GetIdempotencyKey(c)
	if h.replayCheckout(c, v.UserID(), key) {
		return
	}

	o, err := v.Checkout(ctx, req.Delivery, key)
	if err != nil {
		// A concurrent request with the same key may have placed the order
		// and cleared the cart while this one waited for the context.
		if errors.Is(err, services.ErrEmptyCart) && h.replayCheckout(c, v.UserID(), key) {
			return
		}
		failErr(c, err)
		return
	}
	c.Header("Location", "/orders/"+o.ID)
	ok(c, http.StatusCreated, o)
}

// replayCheckout writes the order stored under key, if any, and reports
// whether the response was written.
func (h *Handlers) replayCheckout(c *gin.Context, userID, key string) bool {
	if key == "" {
		return false
	}
	prior, replayed, err := h.Orders.Replay(c.Request.Context(), userID, key)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCheckoutFailed, err.Error())
		return true
	}
	if !replayed {
		return false
	}
	c.Header(HeaderIdempotencyReplayed, "true")
	ok(c, http.StatusOK, prior)
	return true
}

// ListOrders godoc
// @ID          listOrders
// @Summary     Order history (paginated)
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Checkout
// @Produce     json
// @Param       X-Context-ID   header  string  true   "Execution context id"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"orders:u1:2:1735689600000\")
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListOrdersResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.GetString("userID")
	page, pageSize := clampPagination(c)

	// A failed version lookup only costs the 304 shortcut.
	if v, err := h.Orders.Version(ctx, uid); err == nil {
		etag := v.ETag(uid)
		c.Header("ETag", etag)
		if domain.ETagMatches(c.GetHeader("If-None-Match"), etag) {
			c.Status(http.StatusNotModified)
			return
		}
	} else {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("orders version lookup failed")
	}

	items, total, err := h.Orders.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Order{}
	}
	ok(c, http.StatusOK, ListOrdersResponse{Orders: items, Pagination: newPagination(page, pageSize, total)})
}

// GetOrder godoc
// @ID          getOrder
// @Summary     One order
// @Tags        Checkout
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       id            path    string  true  "Order id (UUID)"
// @Success     200  {object} domain.Order
// @Failure     404  {object} handlers.ErrorResponse "Order not found"
// @Router      /orders/{id} [get]
func (h *Handlers) GetOrder(c *gin.Context) {
	o, err := h.Orders.Get(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}
