// Package cart resolves which cart partition an execution context writes to
// and applies line operations to it.
//
// A partition is either the personal cart of a user or the shared cart of an
// accepted invitation. Both session participants resolve the same shared
// partition, so they see and edit the same lines.
package cart

import (
	"errors"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// ErrInvalidQuantity is returned when adding fewer than one unit.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// KeyPrefix prefixes every cart document in the shared store.
const KeyPrefix = "cart:"

// PartitionKey returns "shared:<invitation id>" while a session is active,
// "personal:<user id>" for an identified user, and "" otherwise.
func PartitionKey(userID string, active *domain.Invitation) string {
	if active != nil {
		return "shared:" + active.ID
	}
	if userID != "" {
		return "personal:" + userID
	}
	return ""
}

// StorageKey is the shared store key of a partition.
func StorageKey(partition string) string { return KeyPrefix + partition }

// Cart is a snapshot of one partition.
type Cart struct {
	Partition string            `json:"partition"`
	Shared    bool              `json:"shared"`
	Lines     []domain.CartLine `json:"lines"`
}

// Count returns the number of units across all lines.
func (c Cart) Count() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// SubtotalCents sums line totals.
func (c Cart) SubtotalCents() int64 {
	var sum int64
	for _, l := range c.Lines {
		sum += l.TotalCents()
	}
	return sum
}

// Find returns the line for productID.
func (c Cart) Find(productID string) (domain.CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return domain.CartLine{}, false
}

// AddLine merges line into lines: an existing product gains line.Quantity
// units, a new one is appended. lines is not modified.
func AddLine(lines []domain.CartLine, line domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines)+1)
	merged := false
	for _, l := range lines {
		if l.ProductID == line.ProductID {
			l.Quantity += line.Quantity
			merged = true
		}
		out = append(out, l)
	}
	if !merged {
		out = append(out, line)
	}
	return out
}

// SetQuantity sets the quantity of productID. A quantity below one removes
// the line; an unknown product leaves lines unchanged.
func SetQuantity(lines []domain.CartLine, productID string, qty int) []domain.CartLine {
	if qty < 1 {
		return RemoveLine(lines, productID)
	}
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	for i := range out {
		if out[i].ProductID == productID {
			out[i].Quantity = qty
		}
	}
	return out
}

// RemoveLine drops productID.
func RemoveLine(lines []domain.CartLine, productID string) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.ProductID != productID {
			out = append(out, l)
		}
	}
	return out
}
