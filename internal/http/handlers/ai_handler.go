// AI assistant HTTP handlers.
//
//   - POST /ai/recommendations  (ideas for the current cart, context required)
//   - POST /ai/voice            (interpret and execute a spoken command, context required)
//   - POST /ai/visual-search    (match an uploaded photo to catalog products)
//   - POST /ai/eco-plan         (products and tips for a sustainable event)
//   - POST /ai/speech           (text to a WAV data URI)
//
// Recommendations never fail on AI errors: the context receives a notice and
// the list is empty. The other flows answer 502 ai_unavailable.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// maxImageBytes caps visual search uploads.
const maxImageBytes = 8 << 20

// RecommendationsResponse lists product ideas. Notice is set when the
// assistant could not answer.
type RecommendationsResponse struct {
	Recommendations []string       `json:"recommendations"`
	Notice          *domain.Notice `json:"notice,omitempty"`
}

// VoiceRequest is a transcribed voice query.
type VoiceRequest struct {
	Query string `json:"query" binding:"required,max=500" example:"add two bamboo toothbrushes to my cart"`
}

// VisualSearchResponse is the visual match with the matched products.
type VisualSearchResponse struct {
	ai.VisualMatch
	Products []domain.Product `json:"products"`
}

// EcoPlanRequest names the event to plan.
type EcoPlanRequest struct {
	EventType string `json:"event_type" binding:"required,max=200" example:"zero-waste picnic"`
}

// EcoPlanResponse is the plan with the suggested products resolved.
type EcoPlanResponse struct {
	ai.EcoPlan
	Products []domain.Product `json:"products"`
}

// SpeechRequest is the text to speak.
type SpeechRequest struct {
	Text string `json:"text" binding:"required,max=2000" example:"Added two bamboo toothbrushes to your cart."`
}

// SpeechResponse carries the audio as a data URI.
type SpeechResponse struct {
	Audio string `json:"audio" example:"data:audio/wav;base64,UklGR..."`
}

// Recommendations godoc
// @ID          recommendations
// @Summary     Recommendations for the cart
// @Tags        AI
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     200  {object} handlers.RecommendationsResponse
// @Router      /ai/recommendations [post]
func (h *Handlers) Recommendations(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	recs, n, err := v.Recommend(c.Request.Context(), h.AI)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RecommendationsResponse{Recommendations: recs, Notice: n})
}

// Voice godoc
// @ID          voice
// @Summary     Voice command
// @Description Interprets the query, then adds to cart, searches or navigates the context. Speech is attached when available.
// @Tags        AI
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       body          body    handlers.VoiceRequest  true  "Query"
// @Success     200  {object} viewer.VoiceResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     502  {object} handlers.ErrorResponse "AI unavailable"
// @Router      /ai/voice [post]
func (h *Handlers) Voice(c *gin.Context) {
	var req VoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query is required")
		return
	}
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	res, err := v.Voice(c.Request.Context(), h.AI, req.Query)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// VisualSearch godoc
// @ID          visualSearch
// @Summary     Find products in a photo
// @Tags        AI
// @Accept      multipart/form-data
// @Produce     json
// @Param       image  formData  file  true  "Photo (JPEG, PNG, WebP, HEIC)"
// @Success     200  {object} handlers.VisualSearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing or unsupported image"
// @Failure     502  {object} handlers.ErrorResponse "AI unavailable"
// @Router      /ai/visual-search [post]
func (h *Handlers) VisualSearch(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image file is required")
		return
	}
	if fh.Size > maxImageBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image")
		return
	}

	refs := lo.Map(h.Catalog.All(), func(p domain.Product, _ int) ai.ProductRef {
		return ai.ProductRef{ID: p.ID, Name: p.Name}
	})
	match, err := h.AI.VisualSearch(c.Request.Context(), data, refs)
	if err != nil {
		failErr(c, err)
		return
	}
	products := lo.FilterMap(match.MatchedProductIDs, func(id string, _ int) (domain.Product, bool) {
		return h.Catalog.Get(id)
	})
	ok(c, http.StatusOK, VisualSearchResponse{VisualMatch: match, Products: products})
}

// EcoPlan godoc
// @ID          ecoPlan
// @Summary     Plan a sustainable event
// @Tags        AI
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.EcoPlanRequest  true  "Event"
// @Success     200   {object} handlers.EcoPlanResponse
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     502   {object} handlers.ErrorResponse "AI unavailable"
// @Router      /ai/eco-plan [post]
func (h *Handlers) EcoPlan(c *gin.Context) {
	var req EcoPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "event_type is required")
		return
	}
	names := lo.Map(h.Catalog.All(), func(p domain.Product, _ int) string { return p.Name })
	plan, err := h.AI.PlanEvent(c.Request.Context(), req.EventType, names)
	if err != nil {
		failErr(c, err)
		return
	}
	products := lo.UniqBy(lo.FilterMap(plan.SuggestedProducts, func(name string, _ int) (domain.Product, bool) {
		return h.Catalog.FindByName(name)
	}), func(p domain.Product) string { return p.ID })
	ok(c, http.StatusOK, EcoPlanResponse{EcoPlan: plan, Products: products})
}

// Speech godoc
// @ID          speech
// @Summary     Text to speech
// @Tags        AI
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.SpeechRequest  true  "Text"
// @Success     200   {object} handlers.SpeechResponse
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     502   {object} handlers.ErrorResponse "AI unavailable"
// @Router      /ai/speech [post]
func (h *Handlers) Speech(c *gin.Context) {
	var req SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text is required")
		return
	}
	uri, err := h.AI.Speech(c.Request.Context(), req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	if uri == "" {
		failErr(c, errors.Join(ai.ErrUnavailable, errors.New("no audio")))
		return
	}
	ok(c, http.StatusOK, SpeechResponse{Audio: uri})
}
