package cart

import (
	"errors"
	"strings"

	"github.com/samber/lo"
)

// ErrUnknownDelivery is returned for a delivery option outside DeliveryOptions.
var ErrUnknownDelivery = errors.New("unknown delivery option")

// Delivery identifies a checkout delivery option.
type Delivery string

const (
	DeliveryEco      Delivery = "eco"
	DeliveryStandard Delivery = "standard"
	DeliveryExpress  Delivery = "express"
)

// DeliveryOption describes the price and reward of a delivery choice.
type DeliveryOption struct {
	ID        Delivery `json:"id"`
	Label     string   `json:"label"`
	FeeCents  int64    `json:"fee_cents"`
	EcoPoints int      `json:"eco_points"`
}

// DeliveryOptions lists the supported options in display order.
var DeliveryOptions = []DeliveryOption{
	{ID: DeliveryEco, Label: "Eco-Friendly Delivery (5-7 days)", FeeCents: 0, EcoPoints: 15},
	{ID: DeliveryStandard, Label: "Standard Delivery (3-5 days)", FeeCents: 599},
	{ID: DeliveryExpress, Label: "Express Delivery (1-2 days)", FeeCents: 1299},
}

// LookupDelivery resolves a delivery id case-insensitively. An empty id
// selects standard delivery.
func LookupDelivery(id string) (DeliveryOption, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = string(DeliveryStandard)
	}
	opt, ok := lo.Find(DeliveryOptions, func(o DeliveryOption) bool { return string(o.ID) == id })
	if !ok {
		return DeliveryOption{}, ErrUnknownDelivery
	}
	return opt, nil
}

// Totals is the checkout breakdown of a cart.
type Totals struct {
	SubtotalCents  int64 `json:"subtotal_cents"`
	DeliveryCents  int64 `json:"delivery_cents"`
	TotalCents     int64 `json:"total_cents"`
	Items          int   `json:"items"`
	EcoPointsBonus int   `json:"eco_points_bonus"`
}

// ComputeTotals prices c with delivery opt.
func ComputeTotals(c Cart, opt DeliveryOption) Totals {
	sub := c.SubtotalCents()
	return Totals{
		SubtotalCents:  sub,
		DeliveryCents:  opt.FeeCents,
		TotalCents:     sub + opt.FeeCents,
		Items:          c.Count(),
		EcoPointsBonus: opt.EcoPoints,
	}
}

// EcoPointsFor returns the points earned by adding qty units of a product
// with the given eco-friendliness score (0-100): round(score/10) per unit.
func EcoPointsFor(ecoFriendliness, qty int) int {
	if ecoFriendliness <= 0 || qty <= 0 {
		return 0
	}
	return (ecoFriendliness*qty + 5) / 10
}
