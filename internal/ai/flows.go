package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/tbourn/go-socialcart-backend/internal/observability"
)

// Flow names, used as metric labels and span names.
const (
	FlowRecommend    = "recommendations"
	FlowSentiment    = "eco_sentiment"
	FlowVisualSearch = "visual_search"
	FlowVoice        = "voice_command"
	FlowEcoPlan      = "eco_planner"
	FlowImage        = "product_image"
	FlowSpeech       = "speech"
)

// maxImageBytes bounds images accepted for visual search.
const maxImageBytes = 8 << 20

// Service runs the AI flows against a Generator.
type Service struct {
	Gen     Generator
	Images  ImageStore
	Timeout time.Duration

	validate *validator.Validate
}

// NewService wires a flow runner. A nil images store returns generated
// images inline as data URIs.
func NewService(gen Generator, images ImageStore, timeout time.Duration) *Service {
	if gen == nil {
		gen = Disabled{}
	}
	if images == nil {
		images = InlineStore{}
	}
	return &Service{Gen: gen, Images: images, Timeout: timeout, validate: validator.New()}
}

// Recommendations lists product ideas for a cart.
type Recommendations struct {
	Recommendations []string `json:"recommendations" validate:"dive,required"`
}

// Recommend suggests products based on the names of the cart's items.
func (s *Service) Recommend(ctx context.Context, cartItems []string) (Recommendations, error) {
	var out Recommendations
	if len(cartItems) == 0 {
		return out, ErrEmptyInput
	}
	prompt := "You are a personal shopping assistant. Based on the items in the user's cart, " +
		"recommend other products that they might be interested in.\n\nCart items: " +
		strings.Join(cartItems, ", ")
	err := s.generateJSON(ctx, FlowRecommend, []Part{{Text: prompt}}, &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"recommendations": stringArray("Product recommendations based on the cart items."),
		},
		Required: []string{"recommendations"},
	}, &out)
	return out, err
}

// EcoSentiment summarizes the sustainability signal in product reviews.
type EcoSentiment struct {
	PositivePoints []string `json:"positivePoints" validate:"dive,required"`
	NegativePoints []string `json:"negativePoints" validate:"dive,required"`
	Summary        string   `json:"summary"        validate:"required"`
}

// AnalyzeSentiment extracts eco-related points from review comments.
func (s *Service) AnalyzeSentiment(ctx context.Context, reviews []string) (EcoSentiment, error) {
	var out EcoSentiment
	if len(reviews) == 0 {
		return out, ErrEmptyInput
	}
	var b strings.Builder
	b.WriteString("You are a sustainability expert working for an e-commerce company. ")
	b.WriteString("Analyze customer reviews for a product to find insights about its eco-friendliness.\n\nReviews:\n")
	for _, r := range reviews {
		fmt.Fprintf(&b, "- %q\n", r)
	}
	b.WriteString("\nExtract key points about packaging, durability and longevity, material quality ")
	b.WriteString("and overall environmental impact. Keep the points concise and directly related to the reviews. ")
	b.WriteString("If there are no relevant points, return empty arrays. The summary is one neutral sentence.")
	err := s.generateJSON(ctx, FlowSentiment, []Part{{Text: b.String()}}, &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"positivePoints": stringArray("Positive points about eco-friendliness, durability or sustainable packaging."),
			"negativePoints": stringArray("Negative points about waste, plastic or poor durability."),
			"summary":        {Type: genai.TypeString, Description: "One-sentence summary of the eco-sentiment."},
		},
		Required: []string{"positivePoints", "negativePoints", "summary"},
	}, &out)
	return out, err
}

// ProductRef identifies a product offered to the visual matcher.
type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VisualMatch is the visual search result.
type VisualMatch struct {
	MatchedProductIDs []string `json:"matchedProductIds"`
	Reasoning         string   `json:"reasoning" validate:"required"`
}

// VisualSearch finds catalog products resembling the object in image.
// Matched ids are filtered to those in products.
func (s *Service) VisualSearch(ctx context.Context, image []byte, products []ProductRef) (VisualMatch, error) {
	var out VisualMatch
	if len(image) == 0 || len(products) == 0 {
		return out, ErrEmptyInput
	}
	if len(image) > maxImageBytes {
		return out, ErrUnsupportedImage
	}
	mt := mimetype.Detect(image)
	if !strings.HasPrefix(mt.String(), "image/") {
		return out, ErrUnsupportedImage
	}

	var b strings.Builder
	b.WriteString("You are an expert visual product matcher for an e-commerce store called SocialCart. ")
	b.WriteString("Identify the main object in the user's photo and find the closest matching products from this list:\n")
	known := make(map[string]struct{}, len(products))
	for _, p := range products {
		known[p.ID] = struct{}{}
		fmt.Fprintf(&b, "- %s (ID: %s)\n", p.Name, p.ID)
	}
	b.WriteString("\nReturn the IDs of the top 3 most relevant products based on object type, style and color, ")
	b.WriteString("and a one-sentence reasoning. If no product is a good match, return an empty array.")

	err := s.generateJSON(ctx, FlowVisualSearch, []Part{
		{Text: b.String()},
		{Data: image, MIMEType: mt.String()},
	}, &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"matchedProductIds": stringArray("IDs of products that visually match the image."),
			"reasoning":         {Type: genai.TypeString, Description: "Why these products were chosen."},
		},
		Required: []string{"matchedProductIds", "reasoning"},
	}, &out)
	if err != nil {
		return out, err
	}
	filtered := out.MatchedProductIDs[:0]
	for _, id := range out.MatchedProductIDs {
		if _, ok := known[id]; ok {
			filtered = append(filtered, id)
		}
	}
	out.MatchedProductIDs = filtered
	return out, nil
}

// Action is an interpreted voice command.
type Action string

const (
	ActionSearch         Action = "SEARCH_PRODUCTS"
	ActionAddToCart      Action = "ADD_TO_CART"
	ActionViewCart       Action = "VIEW_CART"
	ActionNavigateHome   Action = "NAVIGATE_HOME"
	ActionNavigateSocial Action = "NAVIGATE_SOCIAL"
	ActionNavigateChat   Action = "NAVIGATE_CHAT"
	ActionUnknown        Action = "UNKNOWN"
)

var actions = []string{
	string(ActionSearch), string(ActionAddToCart), string(ActionViewCart),
	string(ActionNavigateHome), string(ActionNavigateSocial), string(ActionNavigateChat),
	string(ActionUnknown),
}

// Command is the structured form of a spoken request.
type Command struct {
	Action  Action         `json:"action"  validate:"required,oneof=SEARCH_PRODUCTS ADD_TO_CART VIEW_CART NAVIGATE_HOME NAVIGATE_SOCIAL NAVIGATE_CHAT UNKNOWN"`
	Payload CommandPayload `json:"payload"`
}

// CommandPayload carries the action arguments and the reply to speak.
type CommandPayload struct {
	ProductName  string `json:"productName,omitempty"`
	Quantity     int    `json:"quantity,omitempty" validate:"gte=0,lte=99"`
	ResponseText string `json:"responseText"       validate:"required"`
}

// InterpretCommand maps a transcribed query to an action.
func (s *Service) InterpretCommand(ctx context.Context, query string, productNames []string) (Command, error) {
	var out Command
	query = strings.TrimSpace(query)
	if query == "" {
		return out, ErrEmptyInput
	}
	var b strings.Builder
	b.WriteString("You are the SocialCart voice assistant. Interpret the user's command as a structured action.\n")
	fmt.Fprintf(&b, "User's command: %q\n\n", query)
	b.WriteString("Actions: SEARCH_PRODUCTS (find an item), ADD_TO_CART (add an item to the cart), ")
	b.WriteString("VIEW_CART, NAVIGATE_HOME (product listing), NAVIGATE_SOCIAL, NAVIGATE_CHAT, ")
	b.WriteString("UNKNOWN (unclear command).\n\nAvailable products:\n")
	for _, n := range productNames {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	b.WriteString("\nFor ADD_TO_CART choose the closest product name from the list and extract the quantity, default 1. ")
	b.WriteString("For SEARCH_PRODUCTS put the search term in productName. ")
	b.WriteString("Always write a short, friendly responseText confirming the action. ")
	b.WriteString("Omit productName and quantity for navigation actions.")

	err := s.generateJSON(ctx, FlowVoice, []Part{{Text: b.String()}}, &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"action": {Type: genai.TypeString, Enum: actions},
			"payload": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"productName":  {Type: genai.TypeString},
					"quantity":     {Type: genai.TypeInteger},
					"responseText": {Type: genai.TypeString},
				},
				Required: []string{"responseText"},
			},
		},
		Required: []string{"action", "payload"},
	}, &out)
	if err != nil {
		return out, err
	}
	if out.Action == ActionAddToCart && out.Payload.Quantity == 0 {
		out.Payload.Quantity = 1
	}
	return out, nil
}

// PlanTask is one item of an eco event plan.
type PlanTask struct {
	Task        string `json:"task"        validate:"required"`
	Description string `json:"description" validate:"required"`
}

// EcoPlan is the eco planner output.
type EcoPlan struct {
	SuggestedProducts []string   `json:"suggestedProducts" validate:"dive,required"`
	Planner           []PlanTask `json:"planner"           validate:"dive"`
}

// PlanEvent proposes products and sustainable planning tips for an event.
func (s *Service) PlanEvent(ctx context.Context, eventType string, productNames []string) (EcoPlan, error) {
	var out EcoPlan
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return out, ErrEmptyInput
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert eco-conscious event planner. A user is planning a %q.\n\nAvailable products:\n", eventType)
	for _, n := range productNames {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	b.WriteString("\nProvide 3-5 specific product names from the list that fit the event, ")
	b.WriteString("and a planner of 3-4 key tasks, each with a short actionable tip on making it sustainable.")

	err := s.generateJSON(ctx, FlowEcoPlan, []Part{{Text: b.String()}}, &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"suggestedProducts": stringArray("Product names from the available list."),
			"planner": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"task":        {Type: genai.TypeString},
						"description": {Type: genai.TypeString},
					},
					Required: []string{"task", "description"},
				},
			},
		},
		Required: []string{"suggestedProducts", "planner"},
	}, &out)
	return out, err
}

// GeneratedImage is a stored product image.
type GeneratedImage struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
}

// ProductImage renders a product photo and stores it under key.
func (s *Service) ProductImage(ctx context.Context, key, name, description string) (GeneratedImage, error) {
	if strings.TrimSpace(name) == "" {
		return GeneratedImage{}, ErrEmptyInput
	}
	ctx, span := startSpan(ctx, FlowImage)
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	prompt := fmt.Sprintf("Generate a photorealistic image of a product on a clean, white background. "+
		"The product should be the only subject in the image.\nProduct Name: %q\nDescription: %q", name, description)
	start := time.Now()
	data, mime, err := s.Gen.GenerateImage(ctx, prompt)
	observability.AILatency.WithLabelValues(FlowImage).Observe(time.Since(start).Seconds())
	if err != nil {
		return GeneratedImage{}, s.fail(FlowImage, "error", err)
	}
	if len(data) == 0 {
		return GeneratedImage{}, s.fail(FlowImage, "empty", errors.New("empty image"))
	}
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	url, err := s.Images.Put(ctx, key, data, mime)
	if err != nil {
		return GeneratedImage{}, s.fail(FlowImage, "error", err)
	}
	observability.AICalls.WithLabelValues(FlowImage, "ok").Inc()
	return GeneratedImage{URL: url, MIMEType: mime}, nil
}

// Speech converts text to a WAV data URI.
func (s *Service) Speech(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	ctx, span := startSpan(ctx, FlowSpeech)
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	pcm, err := s.Gen.Speak(ctx, text)
	observability.AILatency.WithLabelValues(FlowSpeech).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", s.fail(FlowSpeech, "error", err)
	}
	if len(pcm) == 0 {
		return "", s.fail(FlowSpeech, "empty", errors.New("empty audio"))
	}
	observability.AICalls.WithLabelValues(FlowSpeech, "ok").Inc()
	return DataURI("audio/wav", WAV(pcm, SpeechSampleRate, 1, 16)), nil
}

func (s *Service) generateJSON(ctx context.Context, flow string, parts []Part, schema *genai.Schema, out any) error {
	ctx, span := startSpan(ctx, flow)
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := s.Gen.GenerateJSON(ctx, JSONRequest{Flow: flow, Parts: parts, Schema: schema})
	observability.AILatency.WithLabelValues(flow).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return s.fail(flow, "error", err)
	}
	raw = stripFences(raw)
	if raw == "" {
		return s.fail(flow, "empty", errors.New("empty response"))
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return s.fail(flow, "malformed", err)
	}
	if err := s.validate.Struct(out); err != nil {
		return s.fail(flow, "invalid", err)
	}
	observability.AICalls.WithLabelValues(flow, "ok").Inc()
	return nil
}

func (s *Service) fail(flow, outcome string, err error) error {
	observability.AICalls.WithLabelValues(flow, outcome).Inc()
	log.Warn().Err(err).Str("flow", flow).Str("outcome", outcome).Msg("ai flow failed")
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, flow, err)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

func startSpan(ctx context.Context, flow string) (context.Context, trace.Span) {
	return otel.Tracer("ai/Service").Start(ctx, flow,
		trace.WithAttributes(attribute.String("ai.flow", flow)),
	)
}

func stringArray(desc string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: desc,
		Items:       &genai.Schema{Type: genai.TypeString},
	}
}

// stripFences removes a Markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
