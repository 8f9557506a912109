package pairing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
	"github.com/tbourn/go-socialcart-backend/internal/observability"
)

// InvitationsKey is the shared store key holding the invitation set.
const InvitationsKey = "pairing:invitations"

// Store reads and writes the invitation set in the shared key-value store.
//
// Mutations are read-modify-write over a single document. The mutex
// serializes them within the process; writers in other processes still race
// with last-write-wins semantics.
type Store struct {
	KV kv.Store

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// NewStore wraps the shared store.
func NewStore(s kv.Store) *Store {
	return &Store{
		KV:    s,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Load returns the current set. A missing or corrupted document reads as empty.
func (s *Store) Load(ctx context.Context) (Set, error) {
	var set Set
	if _, err := kv.LoadJSON(ctx, s.KV, InvitationsKey, &set); err != nil {
		return nil, err
	}
	return set, nil
}

// Send creates a pending invitation from -> to on behalf of origin.
func (s *Store) Send(ctx context.Context, from, to domain.Participant, origin string) (Set, domain.Invitation, error) {
	inv := domain.Invitation{
		ID:        s.newID(),
		From:      from,
		To:        to,
		Status:    domain.InvitationPending,
		CreatedAt: s.now(),
	}
	set, err := s.mutate(ctx, "send", origin, func(cur Set) (Set, error) {
		return Send(cur, inv)
	})
	if err != nil {
		return nil, domain.Invitation{}, err
	}
	return set, inv, nil
}

// Accept marks invitation id accepted.
func (s *Store) Accept(ctx context.Context, id, origin string) (Set, domain.Invitation, error) {
	var inv domain.Invitation
	set, err := s.mutate(ctx, "accept", origin, func(cur Set) (Set, error) {
		next, accepted, err := Accept(cur, id)
		inv = accepted
		return next, err
	})
	return set, inv, err
}

// Decline removes pending invitation id.
func (s *Store) Decline(ctx context.Context, id, origin string) (Set, domain.Invitation, error) {
	var inv domain.Invitation
	set, err := s.mutate(ctx, "decline", origin, func(cur Set) (Set, error) {
		next, declined, err := Decline(cur, id)
		inv = declined
		return next, err
	})
	return set, inv, err
}

// End removes invitation id. It is idempotent.
func (s *Store) End(ctx context.Context, id, origin string) (Set, error) {
	return s.mutate(ctx, "end", origin, func(cur Set) (Set, error) {
		next, removed := End(cur, id)
		if !removed {
			return cur, errUnchanged
		}
		return next, nil
	})
}

// errUnchanged lets a reducer skip the write without failing the call.
var errUnchanged = errors.New("unchanged")

func (s *Store) mutate(ctx context.Context, op, origin string, fn func(Set) (Set, error)) (Set, error) {
	tr := otel.Tracer("pairing/Store")
	ctx, span := tr.Start(ctx, op,
		trace.WithAttributes(attribute.String("context.id", origin)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Load(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	next, err := fn(cur)
	if errors.Is(err, errUnchanged) {
		observability.InvitationEvents.WithLabelValues(op, "noop").Inc()
		return cur, nil
	}
	if err != nil {
		observability.InvitationEvents.WithLabelValues(op, "rejected").Inc()
		return cur, err
	}
	if err := kv.SaveJSON(ctx, s.KV, InvitationsKey, next, origin); err != nil {
		span.RecordError(err)
		return nil, err
	}
	observability.InvitationEvents.WithLabelValues(op, "ok").Inc()
	return next, nil
}
