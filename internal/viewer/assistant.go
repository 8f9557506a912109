package viewer

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/cart"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// Assistant is the subset of the AI flows that act on a context.
type Assistant interface {
	Recommend(ctx context.Context, cartItems []string) (ai.Recommendations, error)
	InterpretCommand(ctx context.Context, query string, productNames []string) (ai.Command, error)
	Speech(ctx context.Context, text string) (string, error)
}

// voiceSearchLimit caps SEARCH_PRODUCTS results.
const voiceSearchLimit = 10

// actionPaths maps navigation actions to locations.
var actionPaths = map[ai.Action]string{
	ai.ActionViewCart:       "/cart",
	ai.ActionNavigateHome:   "/",
	ai.ActionNavigateSocial: "/social",
	ai.ActionNavigateChat:   "/chat",
}

// Recommend asks for product ideas based on the cart. A failed call leaves the
// cart untouched, emits a notice and returns no recommendations.
func (v *Viewer) Recommend(ctx context.Context, a Assistant) ([]string, *domain.Notice, error) {
	c, err := v.Cart(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(c.Lines) == 0 {
		return []string{}, nil, nil
	}
	names := lo.Map(c.Lines, func(l domain.CartLine, _ int) string { return l.Name })
	rec, err := a.Recommend(ctx, names)
	if err != nil {
		log.Warn().Err(err).Str("context_id", v.id).Msg("recommendations unavailable")
		if lerr := v.lock(); lerr != nil {
			return []string{}, nil, nil
		}
		n := v.noticeLocked(domain.NoticeError, "Recommendations unavailable", "Could not load recommendations right now.")
		v.mu.Unlock()
		return []string{}, &n, nil
	}
	return nonNil(rec.Recommendations), nil, nil
}

// VoiceResult is the outcome of a voice command.
type VoiceResult struct {
	Command  ai.Command       `json:"command"`
	Products []domain.Product `json:"products,omitempty"`
	Cart     *cart.Cart       `json:"cart,omitempty"`
	Location string           `json:"location,omitempty"`
	Speech   string           `json:"speech,omitempty"`
	Notice   *domain.Notice   `json:"notice,omitempty"`
}

// Voice interprets query and executes the resulting action against the
// context. Speech is attached when text-to-speech succeeds.
func (v *Viewer) Voice(ctx context.Context, a Assistant, query string) (VoiceResult, error) {
	ctx, span := v.span(ctx, "Voice")
	defer span.End()

	names := lo.Map(v.deps.Catalog.All(), func(p domain.Product, _ int) string { return p.Name })
	cmd, err := a.InterpretCommand(ctx, query, names)
	if err != nil {
		return VoiceResult{}, err
	}
	res := VoiceResult{Command: cmd}

	if err := v.lock(); err != nil {
		return VoiceResult{}, err
	}
	switch cmd.Action {
	case ai.ActionAddToCart:
		p, ok := v.deps.Catalog.FindByName(cmd.Payload.ProductName)
		if !ok {
			n := v.noticeLocked(domain.NoticeError, "Product not found",
				"Couldn't find \""+strings.TrimSpace(cmd.Payload.ProductName)+"\".")
			res.Notice = &n
			break
		}
		qty := max(cmd.Payload.Quantity, 1)
		c, _, err := v.addLocked(ctx, p, qty)
		if err != nil {
			v.mu.Unlock()
			return res, err
		}
		res.Cart = &c
	case ai.ActionSearch:
		res.Products = v.deps.Catalog.Search(cmd.Payload.ProductName, voiceSearchLimit)
		if res.Products == nil {
			res.Products = []domain.Product{}
		}
	default:
		if path, ok := actionPaths[cmd.Action]; ok {
			v.moveLocked(path)
			res.Location = path
		}
	}
	v.mu.Unlock()

	if reply := strings.TrimSpace(cmd.Payload.ResponseText); reply != "" {
		if uri, err := a.Speech(ctx, reply); err == nil {
			res.Speech = uri
		} else {
			log.Debug().Err(err).Msg("speech skipped")
		}
	}
	return res, nil
}
