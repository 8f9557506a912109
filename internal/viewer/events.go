// Package viewer implements execution contexts: one Viewer per connected
// client, holding that client's session state, cart view and location, and a
// Hub that opens, looks up and reaps them.
//
// Viewers coordinate only through the shared key-value store. Each Viewer
// applies its own writes synchronously and learns about everyone else's from
// the store's change feed, ignoring notifications tagged with its own id.
package viewer

import (
	"time"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// EventType names an event pushed to a context's client.
type EventType string

const (
	EventNavigate           EventType = "navigate"
	EventSessionActivated   EventType = "session.activated"
	EventSessionDeactivated EventType = "session.deactivated"
	EventInvitationsUpdated EventType = "invitations.updated"
	EventCartUpdated        EventType = "cart.updated"
	EventMessageReceived    EventType = "message.received"
	EventNotice             EventType = "notice"
)

// Event is one item of a context's event stream.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// NavigatePayload is the data of EventNavigate.
type NavigatePayload struct {
	Path        string `json:"path"`
	InitiatorID string `json:"initiator_id,omitempty"`
}

// SessionPayload is the data of the session events.
type SessionPayload struct {
	InvitationID string             `json:"invitation_id"`
	Counterpart  domain.Participant `json:"counterpart"`
}

// InvitationsPayload is the data of EventInvitationsUpdated.
type InvitationsPayload struct {
	Incoming []domain.Invitation `json:"incoming"`
	Outgoing []domain.Invitation `json:"outgoing"`
}

// MessagePayload is the data of EventMessageReceived.
type MessagePayload struct {
	From    string              `json:"from"`
	Message *domain.ChatMessage `json:"message,omitempty"`
}
