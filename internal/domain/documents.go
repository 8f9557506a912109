package domain

import "time"

// InvitationStatus is the lifecycle state of a pairing invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Participant is the user reference carried by an invitation.
type Participant struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Invitation is a proposal from one user to another to start a pair shopping
// session. Declined invitations are removed rather than kept, so a persisted
// set only holds pending and accepted entries.
type Invitation struct {
	ID        string           `json:"id"`
	From      Participant      `json:"from"`
	To        Participant      `json:"to"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// Involves reports whether userID is either side of the invitation.
func (i Invitation) Involves(userID string) bool {
	return i.From.ID == userID || i.To.ID == userID
}

// Other returns the participant that is not userID.
func (i Invitation) Other(userID string) Participant {
	if i.From.ID == userID {
		return i.To
	}
	return i.From
}

// Between reports whether the invitation joins a and b in either direction.
func (i Invitation) Between(a, b string) bool {
	return (i.From.ID == a && i.To.ID == b) || (i.From.ID == b && i.To.ID == a)
}

// CartLine is a product snapshot plus quantity inside a cart partition.
type CartLine struct {
	ProductID       string `json:"product_id"`
	Name            string `json:"name"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	ImageURL        string `json:"image_url,omitempty"`
	EcoFriendliness int    `json:"eco_friendliness"`
	Quantity        int    `json:"quantity"`
}

// TotalCents returns unit price times quantity.
func (l CartLine) TotalCents() int64 { return l.UnitPriceCents * int64(l.Quantity) }

// ChatMessage is one entry of a direct-message conversation log.
type ChatMessage struct {
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// NavigationRecord is published by a session participant so the counterpart
// follows them to Path. Origin is the execution context that published it.
type NavigationRecord struct {
	Path        string    `json:"path"`
	InitiatorID string    `json:"initiator_id"`
	Origin      string    `json:"origin"`
	Timestamp   time.Time `json:"timestamp"`
}

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, user-facing message (the toast of a UI client).
type Notice struct {
	Level       NoticeLevel `json:"level"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
}

// ProductReview is a review shown on a product page.
type ProductReview struct {
	ID      string `json:"id"      yaml:"id"`
	Author  string `json:"author"  yaml:"author"`
	Rating  int    `json:"rating"  yaml:"rating"`
	Comment string `json:"comment" yaml:"comment"`
	Date    string `json:"date"    yaml:"date"`
}

// Product is a read-only catalog entry.
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	PriceCents      int64           `json:"price_cents"`
	Images          []string        `json:"images"`
	Category        string          `json:"category"`
	Stock           int             `json:"stock"`
	EcoFriendliness int             `json:"eco_friendliness"`
	ImageHint       string          `json:"image_hint,omitempty"`
	Reviews         []ProductReview `json:"reviews,omitempty"`
}

// Line returns a cart line for qty units of the product.
func (p Product) Line(qty int) CartLine {
	img := ""
	if len(p.Images) > 0 {
		img = p.Images[0]
	}
	return CartLine{
		ProductID:       p.ID,
		Name:            p.Name,
		UnitPriceCents:  p.PriceCents,
		ImageURL:        img,
		EcoFriendliness: p.EcoFriendliness,
		Quantity:        qty,
	}
}
