package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-socialcart-backend/internal/cart"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/favorites"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
	"github.com/tbourn/go-socialcart-backend/internal/messaging"
	"github.com/tbourn/go-socialcart-backend/internal/navigation"
	"github.com/tbourn/go-socialcart-backend/internal/observability"
	"github.com/tbourn/go-socialcart-backend/internal/pairing"
	"github.com/tbourn/go-socialcart-backend/internal/services"
)

// Context errors.
var (
	ErrClosed         = errors.New("context closed")
	ErrNotParticipant = errors.New("invitation does not involve this user")
	ErrNotRecipient   = errors.New("only the invited user can accept")
	ErrNoSession      = errors.New("no active session")
)

// DuplicatePendingNotice is shown when a second request is sent to the same user.
const DuplicatePendingNotice = "You already have a pending request with this user."

// Directory is the subset of the user directory a context needs.
type Directory interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	AwardPoints(ctx context.Context, id string, points int64) error
	SetOnline(ctx context.Context, id string, online bool) error
}

// Catalog resolves products.
type Catalog interface {
	Get(id string) (domain.Product, bool)
	FindByName(name string) (domain.Product, bool)
	Search(text string, k int) []domain.Product
	All() []domain.Product
}

// Orders places checkouts.
type Orders interface {
	Place(ctx context.Context, userID string, c cart.Cart, delivery, idemKey string) (*domain.Order, error)
}

// Deps are the collaborators shared by every context.
type Deps struct {
	Store       kv.Store
	Invitations *pairing.Store
	Messages    *messaging.Store
	Favorites   *favorites.Store
	Users       Directory
	Catalog     Catalog
	Orders      Orders

	// EventBuffer sizes each context's event channel; 0 means 64.
	EventBuffer int
}

// State is a snapshot of a context for clients.
type State struct {
	ID       string             `json:"id"`
	User     domain.Participant `json:"user"`
	Location string             `json:"location"`
	Session  *SessionPayload    `json:"session,omitempty"`
	Cart     cart.Cart          `json:"cart"`
	LastSeen time.Time          `json:"last_seen"`
}

// Viewer is one execution context. All state is guarded by mu; the watch
// goroutine and request handlers both go through it.
type Viewer struct {
	id   string
	user domain.Participant
	deps Deps

	mu       sync.Mutex
	closed   bool
	session  *pairing.Controller
	cart     *cart.Resolver
	nav      *navigation.Broadcaster
	location string
	pending  string

	events   chan Event
	lastSeen atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

func newViewer(id string, user domain.Participant, deps Deps) *Viewer {
	buf := deps.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	v := &Viewer{
		id:       id,
		user:     user,
		deps:     deps,
		session:  pairing.NewController(user.ID),
		cart:     cart.NewResolver(deps.Store, id),
		location: "/",
		events:   make(chan Event, buf),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	v.nav = navigation.New(deps.Store, id, v.moveLocked)
	v.Touch()
	return v
}

// start evaluates the initial session and subscribes to the store. parent
// bounds the lifetime of the watch goroutine.
func (v *Viewer) start(parent context.Context) error {
	v.ctx, v.cancel = context.WithCancel(parent)
	changes, err := v.deps.Store.Watch(v.ctx, "")
	if err != nil {
		v.cancel()
		return err
	}

	v.mu.Lock()
	set, err := v.deps.Invitations.Load(v.ctx)
	if err == nil {
		v.observeLocked(v.ctx, set)
		_, err = v.cart.Resolve(v.ctx, v.user.ID, v.session.State().Invitation)
	}
	v.mu.Unlock()
	if err != nil {
		v.cancel()
		return err
	}

	go v.watch(changes)
	return nil
}

func (v *Viewer) watch(changes <-chan kv.Change) {
	defer func() {
		v.mu.Lock()
		v.closed = true
		close(v.events)
		v.mu.Unlock()
		close(v.done)
	}()
	for c := range changes {
		v.handle(c)
	}
}

// ID returns the context id.
func (v *Viewer) ID() string { return v.id }

// UserID returns the id of the user the context belongs to.
func (v *Viewer) UserID() string { return v.user.ID }

// User returns the participant reference of the context's user.
func (v *Viewer) User() domain.Participant { return v.user }

// Events streams the context's events. The channel closes with the context.
func (v *Viewer) Events() <-chan Event { return v.events }

// LastSeen returns the time of the last client interaction.
func (v *Viewer) LastSeen() time.Time { return time.Unix(0, v.lastSeen.Load()).UTC() }

// Touch marks the context as used so the reaper keeps it.
func (v *Viewer) Touch() { v.lastSeen.Store(time.Now().UnixNano()) }

// close stops the watch goroutine and waits for it.
func (v *Viewer) close() {
	if v.cancel != nil {
		v.cancel()
		<-v.done
	}
}

// lock serializes an operation and marks the context as used.
func (v *Viewer) lock() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.Touch()
	return nil
}

// handle reacts to one change notification from another context. Queued
// notifications can be older than this context's own writes, so invitation
// and cart changes trigger a re-read of the store instead of applying the
// carried value.
func (v *Viewer) handle(c kv.Change) {
	if !c.FromOther(v.id) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	switch {
	case c.Key == pairing.InvitationsKey:
		if _, err := v.syncLocked(v.ctx); err != nil {
			log.Warn().Err(err).Str("context_id", v.id).Msg("invitation reload failed")
		}
	case c.Key == navigation.SharedKey:
		v.nav.Receive(c, v.user.ID, v.session.State())
	case strings.HasPrefix(c.Key, cart.KeyPrefix):
		changed, err := v.cart.Refresh(v.ctx, c.Key)
		if err != nil {
			log.Warn().Err(err).Str("context_id", v.id).Msg("cart reload failed")
			return
		}
		if changed {
			v.emitLocked(EventCartUpdated, v.cart.View())
		}
	case strings.HasPrefix(c.Key, messaging.KeyPrefix):
		other, ok := messaging.Involving(c.Key, v.user.ID)
		if !ok || c.Deleted {
			return
		}
		payload := MessagePayload{From: other}
		var conv []domain.ChatMessage
		if err := json.Unmarshal(c.Value, &conv); err == nil && len(conv) > 0 {
			last := conv[len(conv)-1]
			if last.SenderID == v.user.ID {
				// Sent from another context of the same user.
				return
			}
			payload.Message = &last
		}
		v.emitLocked(EventMessageReceived, payload)
	}
}

// observeLocked runs the session controller against set, emits the resulting
// transitions and switches the cart partition when the session changed.
func (v *Viewer) observeLocked(ctx context.Context, set pairing.Set) {
	for _, t := range v.session.Observe(set) {
		observability.SessionTransitions.WithLabelValues(string(t.Kind)).Inc()
		typ := EventSessionActivated
		if t.Kind == pairing.Deactivated {
			typ = EventSessionDeactivated
		}
		v.emitLocked(typ, SessionPayload{InvitationID: t.Invitation.ID, Counterpart: t.Counterpart})
		log.Debug().
			Str("context_id", v.id).
			Str("user_id", v.user.ID).
			Str("transition", string(t.Kind)).
			Str("invitation_id", t.Invitation.ID).
			Msg("session transition")
	}
	changed, err := v.cart.Resolve(ctx, v.user.ID, v.session.State().Invitation)
	if err != nil {
		log.Warn().Err(err).Str("context_id", v.id).Msg("cart partition reload failed")
	}
	if changed {
		v.emitLocked(EventCartUpdated, v.cart.View())
	}

	incoming, outgoing := set.PendingFor(v.user.ID)
	sig := strings.Join(lo.Map(append(incoming, outgoing...), func(i domain.Invitation, _ int) string { return i.ID }), ",")
	if sig != v.pending {
		v.pending = sig
		v.emitLocked(EventInvitationsUpdated, InvitationsPayload{Incoming: nonNil(incoming), Outgoing: nonNil(outgoing)})
	}
}

// emitLocked queues an event without blocking; a full buffer drops it.
func (v *Viewer) emitLocked(typ EventType, data any) {
	if v.closed {
		return
	}
	select {
	case v.events <- Event{Type: typ, At: v.now(), Data: data}:
	default:
		observability.DroppedNotifications.WithLabelValues("context").Inc()
	}
}

// moveLocked is the local navigation callback.
func (v *Viewer) moveLocked(path string) {
	v.location = path
	v.emitLocked(EventNavigate, NavigatePayload{Path: path})
}

func (v *Viewer) noticeLocked(level domain.NoticeLevel, title, desc string) domain.Notice {
	n := domain.Notice{Level: level, Title: title, Description: desc}
	v.emitLocked(EventNotice, n)
	return n
}

func (v *Viewer) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("viewer/Viewer").Start(ctx, name,
		trace.WithAttributes(
			attribute.String("context.id", v.id),
			attribute.String("user.id", v.user.ID),
		),
	)
}

// syncLocked re-reads the invitation set so a context that missed a
// notification converges on the next read.
func (v *Viewer) syncLocked(ctx context.Context) (pairing.Set, error) {
	set, err := v.deps.Invitations.Load(ctx)
	if err != nil {
		return nil, err
	}
	v.observeLocked(ctx, set)
	return set, nil
}

// State returns a snapshot of the context.
func (v *Viewer) State(ctx context.Context) (State, error) {
	if err := v.lock(); err != nil {
		return State{}, err
	}
	defer v.mu.Unlock()
	if _, err := v.syncLocked(ctx); err != nil {
		return State{}, err
	}
	c, err := v.cart.Reload(ctx)
	if err != nil {
		return State{}, err
	}
	return State{
		ID:       v.id,
		User:     v.user,
		Location: v.location,
		Session:  sessionPayload(v.session.State(), v.user.ID),
		Cart:     c,
		LastSeen: v.LastSeen(),
	}, nil
}

// Session returns the current session, or nil when idle.
func (v *Viewer) Session(ctx context.Context) (*SessionPayload, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()
	if _, err := v.syncLocked(ctx); err != nil {
		return nil, err
	}
	return sessionPayload(v.session.State(), v.user.ID), nil
}

func sessionPayload(s pairing.State, userID string) *SessionPayload {
	counterpart, ok := s.Counterpart(userID)
	if !ok {
		return nil
	}
	return &SessionPayload{InvitationID: s.InvitationID(), Counterpart: counterpart}
}

// Invitations lists the pending invitations involving the user.
func (v *Viewer) Invitations(ctx context.Context) (InvitationsPayload, error) {
	if err := v.lock(); err != nil {
		return InvitationsPayload{}, err
	}
	defer v.mu.Unlock()
	set, err := v.syncLocked(ctx)
	if err != nil {
		return InvitationsPayload{}, err
	}
	in, out := set.PendingFor(v.user.ID)
	return InvitationsPayload{Incoming: nonNil(in), Outgoing: nonNil(out)}, nil
}

// SendInvitation asks toID to start a pair shopping session.
func (v *Viewer) SendInvitation(ctx context.Context, toID string) (domain.Invitation, error) {
	ctx, span := v.span(ctx, "SendInvitation")
	defer span.End()
	if err := v.lock(); err != nil {
		return domain.Invitation{}, err
	}
	defer v.mu.Unlock()

	if toID == v.user.ID {
		return domain.Invitation{}, pairing.ErrSelfInvitation
	}
	to, err := v.deps.Users.Get(ctx, toID)
	if err != nil {
		return domain.Invitation{}, err
	}
	set, inv, err := v.deps.Invitations.Send(ctx, v.user, to.Participant(), v.id)
	if errors.Is(err, pairing.ErrDuplicatePending) {
		v.noticeLocked(domain.NoticeError, "Request already pending", DuplicatePendingNotice)
		return domain.Invitation{}, err
	}
	if err != nil {
		return domain.Invitation{}, err
	}
	v.observeLocked(ctx, set)
	v.noticeLocked(domain.NoticeSuccess, "Request sent", fmt.Sprintf("Pair shopping request sent to %s.", to.Name))
	return inv, nil
}

// AcceptInvitation accepts an invitation addressed to the user and activates
// the session.
func (v *Viewer) AcceptInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	ctx, span := v.span(ctx, "AcceptInvitation")
	defer span.End()
	if err := v.lock(); err != nil {
		return domain.Invitation{}, err
	}
	defer v.mu.Unlock()

	cur, err := v.deps.Invitations.Load(ctx)
	if err != nil {
		return domain.Invitation{}, err
	}
	inv, ok := cur.Find(id)
	if !ok {
		return domain.Invitation{}, pairing.ErrInvitationNotFound
	}
	if inv.To.ID != v.user.ID {
		return domain.Invitation{}, ErrNotRecipient
	}
	set, accepted, err := v.deps.Invitations.Accept(ctx, id, v.id)
	if err != nil {
		return domain.Invitation{}, err
	}
	v.observeLocked(ctx, set)
	return accepted, nil
}

// DeclineInvitation removes an invitation involving the user. The sender
// declining cancels their request.
func (v *Viewer) DeclineInvitation(ctx context.Context, id string) (domain.Notice, error) {
	ctx, span := v.span(ctx, "DeclineInvitation")
	defer span.End()
	if err := v.lock(); err != nil {
		return domain.Notice{}, err
	}
	defer v.mu.Unlock()

	cur, err := v.deps.Invitations.Load(ctx)
	if err != nil {
		return domain.Notice{}, err
	}
	inv, ok := cur.Find(id)
	if !ok {
		return domain.Notice{}, pairing.ErrInvitationNotFound
	}
	if !inv.Involves(v.user.ID) {
		return domain.Notice{}, ErrNotParticipant
	}
	set, declined, err := v.deps.Invitations.Decline(ctx, id, v.id)
	if err != nil {
		return domain.Notice{}, err
	}
	v.observeLocked(ctx, set)
	title := "Request declined"
	if declined.From.ID == v.user.ID {
		title = "Request cancelled"
	}
	return v.noticeLocked(domain.NoticeInfo, title, fmt.Sprintf("Pair shopping with %s will not start.", declined.Other(v.user.ID).Name)), nil
}

// EndSession deletes the backing invitation and returns to idle.
func (v *Viewer) EndSession(ctx context.Context) error {
	ctx, span := v.span(ctx, "EndSession")
	defer span.End()
	if err := v.lock(); err != nil {
		return err
	}
	defer v.mu.Unlock()

	id := v.session.State().InvitationID()
	if id == "" {
		return ErrNoSession
	}
	set, err := v.deps.Invitations.End(ctx, id, v.id)
	if err != nil {
		return err
	}
	v.observeLocked(ctx, set)
	return nil
}

// Navigate moves the context and, during a session, the counterpart.
func (v *Viewer) Navigate(ctx context.Context, path string) (domain.NavigationRecord, error) {
	if err := v.lock(); err != nil {
		return domain.NavigationRecord{}, err
	}
	defer v.mu.Unlock()
	return v.nav.NavigateShared(ctx, path, v.user.ID, v.session.State())
}

// Location returns the current path of the context.
func (v *Viewer) Location() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.location
}

// Cart returns the current partition, re-read from the store.
func (v *Viewer) Cart(ctx context.Context) (cart.Cart, error) {
	if err := v.lock(); err != nil {
		return cart.Cart{}, err
	}
	defer v.mu.Unlock()
	if _, err := v.syncLocked(ctx); err != nil {
		return cart.Cart{}, err
	}
	return v.cart.Reload(ctx)
}

// AddToCart adds qty units of productID and credits the eco points earned.
func (v *Viewer) AddToCart(ctx context.Context, productID string, qty int) (cart.Cart, int, error) {
	ctx, span := v.span(ctx, "AddToCart")
	defer span.End()
	if err := v.lock(); err != nil {
		return cart.Cart{}, 0, err
	}
	defer v.mu.Unlock()

	p, ok := v.deps.Catalog.Get(productID)
	if !ok {
		return cart.Cart{}, 0, services.ErrProductNotFound
	}
	return v.addLocked(ctx, p, qty)
}

func (v *Viewer) addLocked(ctx context.Context, p domain.Product, qty int) (cart.Cart, int, error) {
	c, err := v.cart.Add(ctx, p, qty)
	if err != nil {
		return c, 0, err
	}
	v.emitLocked(EventCartUpdated, c)
	points := cart.EcoPointsFor(p.EcoFriendliness, qty)
	if points > 0 {
		if err := v.deps.Users.AwardPoints(ctx, v.user.ID, int64(points)); err != nil {
			log.Warn().Err(err).Str("user_id", v.user.ID).Msg("eco points award failed")
			points = 0
		}
	}
	v.noticeLocked(domain.NoticeSuccess, "Added to cart", fmt.Sprintf("%s has been added to your cart.", p.Name))
	return c, points, nil
}

// UpdateCartItem sets the quantity of a line; zero or less removes it.
func (v *Viewer) UpdateCartItem(ctx context.Context, productID string, qty int) (cart.Cart, error) {
	return v.mutateCart(ctx, func(ctx context.Context) (cart.Cart, error) {
		return v.cart.UpdateQuantity(ctx, productID, qty)
	})
}

// RemoveCartItem drops a line.
func (v *Viewer) RemoveCartItem(ctx context.Context, productID string) (cart.Cart, error) {
	return v.mutateCart(ctx, func(ctx context.Context) (cart.Cart, error) {
		return v.cart.Remove(ctx, productID)
	})
}

// ClearCart empties the partition.
func (v *Viewer) ClearCart(ctx context.Context) (cart.Cart, error) {
	return v.mutateCart(ctx, v.cart.Clear)
}

func (v *Viewer) mutateCart(ctx context.Context, fn func(context.Context) (cart.Cart, error)) (cart.Cart, error) {
	if err := v.lock(); err != nil {
		return cart.Cart{}, err
	}
	defer v.mu.Unlock()
	c, err := fn(ctx)
	if err != nil {
		return c, err
	}
	v.emitLocked(EventCartUpdated, c)
	return c, nil
}

// Checkout places an order for the current partition and clears it.
func (v *Viewer) Checkout(ctx context.Context, delivery, idemKey string) (*domain.Order, error) {
	ctx, span := v.span(ctx, "Checkout")
	defer span.End()
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	c, err := v.cart.Reload(ctx)
	if err != nil {
		return nil, err
	}
	o, err := v.deps.Orders.Place(ctx, v.user.ID, c, delivery, idemKey)
	if err != nil {
		return nil, err
	}
	if c, err = v.cart.Clear(ctx); err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Msg("cart clear after checkout failed")
	} else {
		v.emitLocked(EventCartUpdated, c)
	}
	v.noticeLocked(domain.NoticeSuccess, "Order placed", fmt.Sprintf("Order %s confirmed.", o.ID))
	return o, nil
}

// ToggleFavorite adds or removes productID from the user's favorites.
func (v *Viewer) ToggleFavorite(ctx context.Context, productID string) (bool, []string, error) {
	if err := v.lock(); err != nil {
		return false, nil, err
	}
	defer v.mu.Unlock()
	if _, ok := v.deps.Catalog.Get(productID); !ok {
		return false, nil, services.ErrProductNotFound
	}
	return v.deps.Favorites.Toggle(ctx, v.user.ID, productID, v.id)
}

// Favorites lists the user's favorite product ids.
func (v *Viewer) Favorites(ctx context.Context) ([]string, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()
	ids, err := v.deps.Favorites.List(ctx, v.user.ID)
	if ids == nil && err == nil {
		ids = []string{}
	}
	return ids, err
}

// SendMessage appends text to the conversation with recipientID. When the
// recipient is offline an informational notice is returned as well.
func (v *Viewer) SendMessage(ctx context.Context, recipientID, text string) (domain.ChatMessage, *domain.Notice, error) {
	ctx, span := v.span(ctx, "SendMessage")
	defer span.End()
	if err := v.lock(); err != nil {
		return domain.ChatMessage{}, nil, err
	}
	defer v.mu.Unlock()

	to, err := v.deps.Users.Get(ctx, recipientID)
	if err != nil {
		return domain.ChatMessage{}, nil, err
	}
	msg, err := v.deps.Messages.Send(ctx, v.user.ID, to.ID, text, v.id)
	if err != nil {
		return domain.ChatMessage{}, nil, err
	}
	if to.IsOnline {
		return msg, nil, nil
	}
	n := v.noticeLocked(domain.NoticeInfo, "User offline", fmt.Sprintf("%s is offline. They will see your message later.", to.Name))
	return msg, &n, nil
}

// Messages returns the conversation with otherID.
func (v *Viewer) Messages(ctx context.Context, otherID string) ([]domain.ChatMessage, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()
	return v.deps.Messages.Get(ctx, v.user.ID, otherID)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
