package pairing

import "github.com/tbourn/go-socialcart-backend/internal/domain"

// State is a session controller state: Idle when Invitation is nil, Active
// otherwise.
type State struct {
	Invitation *domain.Invitation
}

// Idle is the zero state.
var Idle = State{}

// Active reports whether a session is active.
func (s State) Active() bool { return s.Invitation != nil }

// Counterpart returns the other participant of the active session.
func (s State) Counterpart(userID string) (domain.Participant, bool) {
	if s.Invitation == nil {
		return domain.Participant{}, false
	}
	return s.Invitation.Other(userID), true
}

// InvitationID returns the backing invitation id, or "" when idle.
func (s State) InvitationID() string {
	if s.Invitation == nil {
		return ""
	}
	return s.Invitation.ID
}

// TransitionKind names an edge of the Idle/Active machine.
type TransitionKind string

const (
	Activated   TransitionKind = "activated"
	Deactivated TransitionKind = "deactivated"
)

// Transition is a state change produced by Step.
type Transition struct {
	Kind        TransitionKind
	Invitation  domain.Invitation
	Counterpart domain.Participant
}

// Step is the transition function of the session state machine for userID:
//
//	Idle   + accepted invitation involving userID -> Active (first in set order)
//	Active + backing invitation missing or no longer accepted -> Idle
//	Active + backing invitation still accepted -> Active (snapshot refreshed)
//
// ok is false when the step produced no transition.
func Step(cur State, userID string, set Set) (next State, t Transition, ok bool) {
	if cur.Active() {
		backing, found := set.Find(cur.Invitation.ID)
		if !found || backing.Status != domain.InvitationAccepted {
			return Idle, Transition{
				Kind:        Deactivated,
				Invitation:  *cur.Invitation,
				Counterpart: cur.Invitation.Other(userID),
			}, true
		}
		return State{Invitation: &backing}, Transition{}, false
	}
	accepted := set.AcceptedFor(userID)
	if len(accepted) == 0 {
		return Idle, Transition{}, false
	}
	inv := accepted[0]
	return State{Invitation: &inv}, Transition{
		Kind:        Activated,
		Invitation:  inv,
		Counterpart: inv.Other(userID),
	}, true
}

// Evaluate applies Step until the state settles and returns every transition
// taken. A session whose invitation was replaced by another accepted one
// yields Deactivated followed by Activated.
func Evaluate(cur State, userID string, set Set) (State, []Transition) {
	var out []Transition
	for i := 0; i < 3; i++ {
		next, t, ok := Step(cur, userID, set)
		cur = next
		if !ok {
			break
		}
		out = append(out, t)
	}
	return cur, out
}

// Controller tracks the session state of one execution context. It is not
// safe for concurrent use; the owning context serializes access.
type Controller struct {
	userID string
	state  State
}

// NewController returns an idle controller for userID.
func NewController(userID string) *Controller {
	return &Controller{userID: userID}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Observe re-evaluates the state against set and returns the transitions.
func (c *Controller) Observe(set Set) []Transition {
	next, ts := Evaluate(c.state, c.userID, set)
	c.state = next
	return ts
}

// Clear drops local session references without consulting the set.
func (c *Controller) Clear() { c.state = Idle }
