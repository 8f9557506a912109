// Package pairing owns pair shopping invitations and the session state
// machine derived from them.
//
// The invitation set is an immutable value: every operation is a reducer that
// returns a new set. Store persists the whole set as one document in the
// shared key-value store, so every execution context observes the same set
// and derives its own session state from it with Step.
package pairing

import (
	"errors"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// Reducer validation failures.
var (
	ErrDuplicatePending   = errors.New("you already have a pending request with this user")
	ErrSelfInvitation     = errors.New("cannot invite yourself")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrNotPending         = errors.New("invitation is not pending")
	ErrAlreadyInSession   = errors.New("a participant is already in a pair shopping session")
)

// Set is an immutable collection of invitations in creation order.
type Set []domain.Invitation

// clone returns a copy safe to modify.
func (s Set) clone() Set {
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Find returns the invitation with id.
func (s Set) Find(id string) (domain.Invitation, bool) {
	for _, inv := range s {
		if inv.ID == id {
			return inv, true
		}
	}
	return domain.Invitation{}, false
}

// PendingFor splits the pending invitations involving userID by direction.
func (s Set) PendingFor(userID string) (incoming, outgoing []domain.Invitation) {
	for _, inv := range s {
		if inv.Status != domain.InvitationPending {
			continue
		}
		switch userID {
		case inv.To.ID:
			incoming = append(incoming, inv)
		case inv.From.ID:
			outgoing = append(outgoing, inv)
		}
	}
	return incoming, outgoing
}

// AcceptedFor returns the accepted invitations involving userID.
func (s Set) AcceptedFor(userID string) []domain.Invitation {
	var out []domain.Invitation
	for _, inv := range s {
		if inv.Status == domain.InvitationAccepted && inv.Involves(userID) {
			out = append(out, inv)
		}
	}
	return out
}

// PendingBetween returns the pending invitation joining a and b in either
// direction, if any.
func (s Set) PendingBetween(a, b string) (domain.Invitation, bool) {
	for _, inv := range s {
		if inv.Status == domain.InvitationPending && inv.Between(a, b) {
			return inv, true
		}
	}
	return domain.Invitation{}, false
}

// Send adds inv as pending. It fails when from and to are the same user or a
// pending invitation already joins them.
func Send(s Set, inv domain.Invitation) (Set, error) {
	if inv.From.ID == inv.To.ID {
		return s, ErrSelfInvitation
	}
	if _, ok := s.PendingBetween(inv.From.ID, inv.To.ID); ok {
		return s, ErrDuplicatePending
	}
	inv.Status = domain.InvitationPending
	return append(s.clone(), inv), nil
}

// Accept moves a pending invitation to accepted. Neither participant may
// already hold another accepted invitation.
func Accept(s Set, id string) (Set, domain.Invitation, error) {
	idx := s.index(id)
	if idx < 0 {
		return s, domain.Invitation{}, ErrInvitationNotFound
	}
	inv := s[idx]
	if inv.Status != domain.InvitationPending {
		return s, inv, ErrNotPending
	}
	if len(s.AcceptedFor(inv.From.ID)) > 0 || len(s.AcceptedFor(inv.To.ID)) > 0 {
		return s, inv, ErrAlreadyInSession
	}
	out := s.clone()
	out[idx].Status = domain.InvitationAccepted
	return out, out[idx], nil
}

// Decline removes a pending invitation entirely. The returned invitation
// carries the declined status for the one-time notice.
func Decline(s Set, id string) (Set, domain.Invitation, error) {
	idx := s.index(id)
	if idx < 0 {
		return s, domain.Invitation{}, ErrInvitationNotFound
	}
	inv := s[idx]
	if inv.Status != domain.InvitationPending {
		return s, inv, ErrNotPending
	}
	inv.Status = domain.InvitationDeclined
	return s.without(idx), inv, nil
}

// End removes the invitation backing a session. Ending an invitation that is
// already gone leaves the set unchanged and reports removed=false.
func End(s Set, id string) (out Set, removed bool) {
	idx := s.index(id)
	if idx < 0 {
		return s, false
	}
	return s.without(idx), true
}

func (s Set) index(id string) int {
	for i, inv := range s {
		if inv.ID == id {
			return i
		}
	}
	return -1
}

func (s Set) without(idx int) Set {
	out := make(Set, 0, len(s)-1)
	out = append(out, s[:idx]...)
	return append(out, s[idx+1:]...)
}
