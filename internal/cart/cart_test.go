package cart

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

func TestPartitionKey(t *testing.T) {
	inv := &domain.Invitation{ID: "i1"}
	require.Equal(t, "shared:i1", PartitionKey("u1", inv))
	require.Equal(t, "shared:i1", PartitionKey("u2", inv))
	require.Equal(t, "personal:u1", PartitionKey("u1", nil))
	require.Equal(t, "", PartitionKey("", nil))
	// same inputs, same key
	require.Equal(t, PartitionKey("u1", nil), PartitionKey("u1", nil))
}

func TestAddLine_MergesQuantities(t *testing.T) {
	p := domain.Product{ID: "p1", Name: "Tote", PriceCents: 1000}
	lines := AddLine(nil, p.Line(1))
	lines = AddLine(lines, p.Line(2))

	require.Len(t, lines, 1)
	require.Equal(t, 3, lines[0].Quantity)
	require.EqualValues(t, 3000, lines[0].TotalCents())

	c := Cart{Lines: lines}
	require.Equal(t, 3, c.Count())
	require.EqualValues(t, 3000, c.SubtotalCents())
}

func TestSetQuantityAndRemove(t *testing.T) {
	a := domain.CartLine{ProductID: "a", UnitPriceCents: 100, Quantity: 1}
	b := domain.CartLine{ProductID: "b", UnitPriceCents: 250, Quantity: 2}
	lines := []domain.CartLine{a, b}

	out := SetQuantity(lines, "a", 4)
	require.Equal(t, 4, out[0].Quantity)
	require.Equal(t, 1, lines[0].Quantity, "input must not change")

	out = SetQuantity(lines, "a", 0)
	require.Len(t, out, 1)
	require.Equal(t, "b", out[0].ProductID)

	out = SetQuantity(lines, "missing", 3)
	require.Equal(t, lines, out)

	require.Len(t, RemoveLine(lines, "b"), 1)
}

func TestTotalsAndDelivery(t *testing.T) {
	c := Cart{Lines: []domain.CartLine{{ProductID: "a", UnitPriceCents: 1000, Quantity: 2}}}

	eco, err := LookupDelivery("ECO")
	require.NoError(t, err)
	tot := ComputeTotals(c, eco)
	require.EqualValues(t, 2000, tot.TotalCents)
	require.Equal(t, 15, tot.EcoPointsBonus)

	std, err := LookupDelivery("")
	require.NoError(t, err)
	require.Equal(t, DeliveryStandard, std.ID)
	require.EqualValues(t, 2599, ComputeTotals(c, std).TotalCents)

	exp, err := LookupDelivery("express")
	require.NoError(t, err)
	require.EqualValues(t, 1299, exp.FeeCents)

	_, err = LookupDelivery("drone")
	require.ErrorIs(t, err, ErrUnknownDelivery)
}

func TestEcoPointsFor(t *testing.T) {
	require.Equal(t, 9, EcoPointsFor(90, 1))
	require.Equal(t, 27, EcoPointsFor(90, 3))
	require.Equal(t, 1, EcoPointsFor(5, 1))
	require.Equal(t, 0, EcoPointsFor(0, 4))
	require.Equal(t, 0, EcoPointsFor(80, 0))
}
