package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/catalog"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/favorites"
	"github.com/tbourn/go-socialcart-backend/internal/http/middleware"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
	"github.com/tbourn/go-socialcart-backend/internal/kv/kvtest"
	"github.com/tbourn/go-socialcart-backend/internal/messaging"
	"github.com/tbourn/go-socialcart-backend/internal/pairing"
	"github.com/tbourn/go-socialcart-backend/internal/repo"
	"github.com/tbourn/go-socialcart-backend/internal/services"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

// ---------- AI stub ----------

type stubAI struct {
	err       error
	command   ai.Command
	matched   []string
	sentiment ai.EcoSentiment
	plan      ai.EcoPlan
}

func (s *stubAI) Recommend(context.Context, []string) (ai.Recommendations, error) {
	if s.err != nil {
		return ai.Recommendations{}, s.err
	}
	return ai.Recommendations{Recommendations: []string{"Bamboo Cutlery Set"}}, nil
}

func (s *stubAI) InterpretCommand(context.Context, string, []string) (ai.Command, error) {
	return s.command, s.err
}

func (s *stubAI) Speech(context.Context, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "data:audio/wav;base64,UklGRg==", nil
}

func (s *stubAI) AnalyzeSentiment(context.Context, []string) (ai.EcoSentiment, error) {
	return s.sentiment, s.err
}

func (s *stubAI) VisualSearch(context.Context, []byte, []ai.ProductRef) (ai.VisualMatch, error) {
	return ai.VisualMatch{MatchedProductIDs: s.matched, Reasoning: "a steel bottle"}, s.err
}

func (s *stubAI) PlanEvent(context.Context, string, []string) (ai.EcoPlan, error) {
	return s.plan, s.err
}

func (s *stubAI) ProductImage(_ context.Context, key, _, _ string) (ai.GeneratedImage, error) {
	if s.err != nil {
		return ai.GeneratedImage{}, s.err
	}
	return ai.GeneratedImage{URL: "https://img.example/" + key + ".png", MIMEType: "image/png"}, nil
}

// ---------- test environment ----------

type testEnv struct {
	router *gin.Engine
	h      *Handlers
	hub    *viewer.Hub
	users  *services.UserService
	ai     *stubAI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db := kvtest.NewDB(t)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat, err := catalog.Open("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	users := services.NewUserService(db)
	seed := make([]domain.User, 0, len(cat.Users()))
	for _, u := range cat.Users() {
		seed = append(seed, u.User())
	}
	if _, err := users.Seed(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := kv.NewSQLStore(db, 64)
	t.Cleanup(func() { _ = store.Close() })
	orders := services.NewCheckoutService(db, time.Hour)
	hub := viewer.NewHub(viewer.Deps{
		Store:       store,
		Invitations: pairing.NewStore(store),
		Messages:    messaging.New(store, 1000),
		Favorites:   favorites.New(store),
		Users:       users,
		Catalog:     cat,
		Orders:      orders,
		EventBuffer: 64,
	}, time.Minute)
	t.Cleanup(func() { hub.Shutdown(context.Background()) })

	stub := &stubAI{}
	h := New(Deps{
		Users:   users,
		Reviews: &services.ReviewService{DB: db, Catalog: cat},
		Orders:  orders,
		Catalog: cat,
		Hub:     hub,
		AI:      stub,
	})

	r := gin.New()
	r.Use(middleware.ContextIdentity(func(id string) (string, bool) {
		v, err := hub.Get(id)
		if err != nil {
			return "", false
		}
		return v.UserID(), true
	}))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.POST("/users", h.Signup)
	r.GET("/users", h.ListUsers)
	r.GET("/users/:username", h.GetUser)
	r.GET("/leaderboard", h.Leaderboard)
	r.POST("/contexts", h.OpenContext)
	r.GET("/contexts/:id", h.GetContext)
	r.DELETE("/contexts/:id", h.CloseContext)
	r.GET("/contexts/:id/events", h.ContextEvents)
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.GET("/products/:id/sentiment", h.ProductSentiment)
	r.POST("/products/:id/image", h.ProductImage)
	r.POST("/ai/visual-search", h.VisualSearch)
	r.POST("/ai/eco-plan", h.EcoPlan)
	r.POST("/ai/speech", h.Speech)

	auth := r.Group("", middleware.RequireContext())
	auth.PATCH("/users/me", h.UpdateMe)
	auth.POST("/users/:id/follow", h.ToggleFollow)
	auth.POST("/products/:id/reviews", h.CreateReview)
	auth.GET("/cart", h.GetCart)
	auth.POST("/cart/items", h.AddCartItem)
	auth.PUT("/cart/items/:productId", h.UpdateCartItem)
	auth.DELETE("/cart/items/:productId", h.RemoveCartItem)
	auth.DELETE("/cart", h.ClearCart)
	auth.GET("/favorites", h.ListFavorites)
	auth.POST("/favorites/:productId", h.ToggleFavorite)
	auth.GET("/checkout/options", h.CheckoutOptions)
	auth.POST("/checkout", h.Checkout)
	auth.GET("/orders", h.ListOrders)
	auth.GET("/orders/:id", h.GetOrder)
	auth.GET("/session", h.GetSession)
	auth.DELETE("/session", h.EndSession)
	auth.GET("/invitations", h.ListInvitations)
	auth.POST("/invitations", h.SendInvitation)
	auth.POST("/invitations/:id/accept", h.AcceptInvitation)
	auth.POST("/invitations/:id/decline", h.DeclineInvitation)
	auth.POST("/navigate", h.Navigate)
	auth.GET("/conversations/:userId/messages", h.ListMessages)
	auth.POST("/conversations/:userId/messages", h.SendMessage)
	auth.POST("/ai/recommendations", h.Recommendations)
	auth.POST("/ai/voice", h.Voice)

	return &testEnv{router: r, h: h, hub: hub, users: users, ai: stub}
}

// do sends a JSON request through the router. contextID may be empty.
func (e *testEnv) do(t *testing.T, method, path, contextID string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if contextID != "" {
		req.Header.Set(middleware.HeaderContextID, contextID)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// login opens a context for username and returns its id.
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/contexts", "", OpenContextRequest{Username: username})
	if w.Code != http.StatusCreated {
		t.Fatalf("open context for %s: %d %s", username, w.Code, w.Body.String())
	}
	var st viewer.State
	decode(t, w, &st)
	if st.ID == "" || w.Header().Get(middleware.HeaderContextID) != st.ID {
		t.Fatalf("context id not returned: %+v", st)
	}
	return st.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func wantCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("want %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if code == "" {
		return
	}
	var er ErrorResponse
	decode(t, w, &er)
	if er.Code != code {
		t.Fatalf("want code %q, got %q", code, er.Code)
	}
}

// ---------- users ----------

func TestSignup(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/users", "", SignupRequest{Name: "Alice Green", Username: "@Alice.G"})
	wantCode(t, w, http.StatusCreated, "")
	var u domain.User
	decode(t, w, &u)
	if u.Username != "alice.g" || u.EcoPoints != 0 || u.IsOnline {
		t.Fatalf("unexpected user: %+v", u)
	}

	wantCode(t, e.do(t, http.MethodPost, "/users", "", SignupRequest{Name: "Other", Username: "alice.g"}),
		http.StatusConflict, ErrCodeConflict)
	wantCode(t, e.do(t, http.MethodPost, "/users", "", SignupRequest{Name: "Bad", Username: "a b"}),
		http.StatusBadRequest, ErrCodeBadRequest)
	wantCode(t, e.do(t, http.MethodPost, "/users", "", map[string]string{"name": "No Username"}),
		http.StatusBadRequest, ErrCodeBadRequest)
}

func TestListAndGetUsers(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/users?page=1&page_size=1", "", nil)
	wantCode(t, w, http.StatusOK, "")
	var page ListUsersResponse
	decode(t, w, &page)
	if len(page.Users) != 1 || page.Pagination.Total != 2 || !page.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", page)
	}

	w = e.do(t, http.MethodGet, "/users/@janedoe", "", nil)
	wantCode(t, w, http.StatusOK, "")
	var u domain.User
	decode(t, w, &u)
	if u.ID != "u1" {
		t.Fatalf("want u1, got %+v", u)
	}

	wantCode(t, e.do(t, http.MethodGet, "/users/nobody", "", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestUpdateMeAndFollow(t *testing.T) {
	e := newTestEnv(t)
	wantCode(t, e.do(t, http.MethodPatch, "/users/me", "", UpdateProfileRequest{}), http.StatusUnauthorized, "context_required")

	cid := e.login(t, "janedoe")
	bio := "Plastic free since 2019"
	w := e.do(t, http.MethodPatch, "/users/me", cid, UpdateProfileRequest{Bio: &bio})
	wantCode(t, w, http.StatusOK, "")
	var u domain.User
	decode(t, w, &u)
	if u.Bio != bio {
		t.Fatalf("bio not updated: %+v", u)
	}

	before, _ := e.users.Get(context.Background(), "u2")
	w = e.do(t, http.MethodPost, "/users/u2/follow", cid, nil)
	wantCode(t, w, http.StatusOK, "")
	var fr FollowResponse
	decode(t, w, &fr)
	if !fr.Following {
		t.Fatalf("want following after first toggle")
	}
	wantCode(t, e.do(t, http.MethodPost, "/users/u2/follow", cid, nil), http.StatusOK, "")
	after, _ := e.users.Get(context.Background(), "u2")
	if after.Followers != before.Followers {
		t.Fatalf("follow+unfollow changed followers: %d -> %d", before.Followers, after.Followers)
	}

	wantCode(t, e.do(t, http.MethodPost, "/users/u1/follow", cid, nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestLeaderboard(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/leaderboard?limit=5", "", nil)
	wantCode(t, w, http.StatusOK, "")
	var lb LeaderboardResponse
	decode(t, w, &lb)
	if len(lb.Users) != 2 || lb.Users[0].EcoPoints < lb.Users[1].EcoPoints {
		t.Fatalf("leaderboard not sorted: %+v", lb.Users)
	}
}

// ---------- contexts ----------

func TestContextLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	wantCode(t, e.do(t, http.MethodPost, "/contexts", "", OpenContextRequest{Username: "ghost"}), http.StatusNotFound, ErrCodeNotFound)

	cid := e.login(t, "janedoe")
	if u, _ := e.users.Get(ctx, "u1"); !u.IsOnline {
		t.Fatalf("user should be online with an open context")
	}

	w := e.do(t, http.MethodGet, "/contexts/"+cid, "", nil)
	wantCode(t, w, http.StatusOK, "")
	var st viewer.State
	decode(t, w, &st)
	if st.User.ID != "u1" || st.Session != nil || st.Cart.Partition != "personal:u1" {
		t.Fatalf("unexpected state: %+v", st)
	}

	wantCode(t, e.do(t, http.MethodDelete, "/contexts/"+cid, "", nil), http.StatusNoContent, "")
	if u, _ := e.users.Get(ctx, "u1"); u.IsOnline {
		t.Fatalf("user should be offline after their last context closed")
	}
	wantCode(t, e.do(t, http.MethodGet, "/contexts/"+cid, "", nil), http.StatusNotFound, ErrCodeNotFound)
	wantCode(t, e.do(t, http.MethodGet, "/cart", cid, nil), http.StatusUnauthorized, "context_required")
}

// ---------- products ----------

func TestListProducts(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/products?page_size=3", "", nil)
	wantCode(t, w, http.StatusOK, "")
	var all ListProductsResponse
	decode(t, w, &all)
	if len(all.Products) != 3 || all.Pagination.Total != 10 || len(all.Categories) == 0 {
		t.Fatalf("unexpected listing: %+v", all.Pagination)
	}

	w = e.do(t, http.MethodGet, "/products?q=bottle", "", nil)
	var found ListProductsResponse
	decode(t, w, &found)
	if len(found.Products) == 0 || found.Products[0].ID != "5" {
		t.Fatalf("want product 5 first, got %+v", found.Products)
	}
}

func TestProductDetailAndReviews(t *testing.T) {
	e := newTestEnv(t)
	cid := e.login(t, "johnsmith")

	wantCode(t, e.do(t, http.MethodGet, "/products/404", "", nil), http.StatusNotFound, ErrCodeNotFound)

	w := e.do(t, http.MethodPost, "/products/5/reviews", cid, CreateReviewRequest{Rating: 4, Comment: "No plastic at all."})
	wantCode(t, w, http.StatusCreated, "")
	wantCode(t, e.do(t, http.MethodPost, "/products/5/reviews", cid, CreateReviewRequest{Rating: 5}),
		http.StatusConflict, ErrCodeConflict)
	wantCode(t, e.do(t, http.MethodPost, "/products/5/reviews", cid, CreateReviewRequest{Rating: 9}),
		http.StatusBadRequest, ErrCodeBadRequest)

	w = e.do(t, http.MethodGet, "/products/5", "", nil)
	wantCode(t, w, http.StatusOK, "")
	var d ProductDetailResponse
	decode(t, w, &d)
	if d.ID != "5" || len(d.Reviews) != 3 {
		t.Fatalf("want 2 seed + 1 stored review, got %d", len(d.Reviews))
	}
}

func TestProductSentiment(t *testing.T) {
	e := newTestEnv(t)
	e.ai.sentiment = ai.EcoSentiment{PositivePoints: []string{"durable"}, NegativePoints: []string{}, Summary: "Loved."}

	w := e.do(t, http.MethodGet, "/products/5/sentiment", "", nil)
	wantCode(t, w, http.StatusOK, "")
	var s ai.EcoSentiment
	decode(t, w, &s)
	if s.Summary != "Loved." {
		t.Fatalf("unexpected sentiment: %+v", s)
	}

	// Product 3 has no reviews; the assistant is not consulted.
	e.ai.err = ai.ErrUnavailable
	wantCode(t, e.do(t, http.MethodGet, "/products/3/sentiment", "", nil), http.StatusOK, "")
	wantCode(t, e.do(t, http.MethodGet, "/products/5/sentiment", "", nil), http.StatusBadGateway, ErrCodeAIUnavailable)
}

func TestProductImage(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/products/7/image", "", nil)
	wantCode(t, w, http.StatusOK, "")
	var img ai.GeneratedImage
	decode(t, w, &img)
	if img.URL != "https://img.example/products/7.png" {
		t.Fatalf("unexpected image: %+v", img)
	}
	wantCode(t, e.do(t, http.MethodPost, "/products/x/image", "", nil), http.StatusNotFound, ErrCodeNotFound)
}
