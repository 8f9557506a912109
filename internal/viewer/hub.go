package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/observability"
)

// ErrUnknownContext is returned for ids that name no open context.
var ErrUnknownContext = errors.New("unknown context")

// Hub is the registry of open contexts. It marks a user online while at least
// one of their contexts is open and reaps contexts left idle.
type Hub struct {
	deps    Deps
	idleTTL time.Duration

	// base outlives requests; viewers watch the store under it.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	viewers map[string]*Viewer
	perUser map[string]int

	newID func() string
	now   func() time.Time
}

// NewHub returns an empty hub. idleTTL <= 0 disables reaping.
func NewHub(deps Deps, idleTTL time.Duration) *Hub {
	base, cancel := context.WithCancel(context.Background())
	return &Hub{
		deps:    deps,
		idleTTL: idleTTL,
		base:    base,
		cancel:  cancel,
		viewers: make(map[string]*Viewer),
		perUser: make(map[string]int),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Open starts a context for user and marks them online.
func (h *Hub) Open(ctx context.Context, user *domain.User) (*Viewer, error) {
	v := newViewer(h.newID(), user.Participant(), h.deps)
	if err := v.start(h.base); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.viewers[v.id] = v
	h.perUser[user.ID]++
	first := h.perUser[user.ID] == 1
	h.mu.Unlock()
	observability.OpenContexts.Inc()

	if first {
		if err := h.deps.Users.SetOnline(ctx, user.ID, true); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("presence update failed")
		}
	}
	log.Info().Str("context_id", v.id).Str("user_id", user.ID).Msg("context opened")
	return v, nil
}

// Get returns the open context with id.
func (h *Hub) Get(id string) (*Viewer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.viewers[id]
	if !ok {
		return nil, ErrUnknownContext
	}
	return v, nil
}

// Len returns the number of open contexts.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Close stops the context with id. The user goes offline with their last
// context.
func (h *Hub) Close(ctx context.Context, id string) error {
	h.mu.Lock()
	v, ok := h.viewers[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownContext
	}
	delete(h.viewers, id)
	uid := v.UserID()
	h.perUser[uid]--
	last := h.perUser[uid] <= 0
	if last {
		delete(h.perUser, uid)
	}
	h.mu.Unlock()

	v.close()
	observability.OpenContexts.Dec()
	if last {
		if err := h.deps.Users.SetOnline(ctx, uid, false); err != nil {
			log.Warn().Err(err).Str("user_id", uid).Msg("presence update failed")
		}
	}
	log.Info().Str("context_id", id).Str("user_id", uid).Msg("context closed")
	return nil
}

// Reap closes contexts idle for longer than the TTL and returns how many.
func (h *Hub) Reap(ctx context.Context) int {
	if h.idleTTL <= 0 {
		return 0
	}
	cutoff := h.now().Add(-h.idleTTL)
	h.mu.Lock()
	var stale []string
	for id, v := range h.viewers {
		if v.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()

	n := 0
	for _, id := range stale {
		if err := h.Close(ctx, id); err == nil {
			n++
		}
	}
	return n
}

// Run reaps idle contexts periodically until ctx is done, then closes every
// remaining context.
func (h *Hub) Run(ctx context.Context) {
	defer h.Shutdown(context.WithoutCancel(ctx))
	if h.idleTTL <= 0 {
		<-ctx.Done()
		return
	}
	interval := h.idleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := h.Reap(ctx); n > 0 {
				log.Info().Int("reaped", n).Msg("idle contexts closed")
			}
		}
	}
}

// Shutdown closes every context.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.viewers))
	for id := range h.viewers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		_ = h.Close(ctx, id)
	}
	h.cancel()
}
