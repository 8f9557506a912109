package cart

import (
	"context"
	"slices"
	"strings"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
)

// Resolver holds the cart view of one execution context. It tracks the
// active partition and mirrors its lines from the shared store.
//
// Resolver is not safe for concurrent use; the owning context serializes
// access.
type Resolver struct {
	store  kv.Store
	origin string

	partition string
	lines     []domain.CartLine
}

// NewResolver returns a resolver writing on behalf of origin.
func NewResolver(store kv.Store, origin string) *Resolver {
	return &Resolver{store: store, origin: origin}
}

// Partition returns the current partition key ("" when none).
func (r *Resolver) Partition() string { return r.partition }

// Resolve recomputes the partition for userID and the active invitation. When
// the partition changes, local lines are discarded and reloaded from the new
// partition. changed reports whether that happened.
func (r *Resolver) Resolve(ctx context.Context, userID string, active *domain.Invitation) (changed bool, err error) {
	next := PartitionKey(userID, active)
	if next == r.partition {
		return false, nil
	}
	r.partition = next
	r.lines = nil
	if _, err := r.Reload(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// View returns the locally held snapshot.
func (r *Resolver) View() Cart {
	lines := make([]domain.CartLine, len(r.lines))
	copy(lines, r.lines)
	return Cart{Partition: r.partition, Shared: isShared(r.partition), Lines: lines}
}

// Reload replaces local lines with the stored partition.
func (r *Resolver) Reload(ctx context.Context) (Cart, error) {
	lines, err := r.load(ctx)
	if err != nil {
		return r.View(), err
	}
	r.lines = lines
	return r.View(), nil
}

// Refresh re-reads the current partition when key names it. Notifications
// may arrive after this context's own newer writes, so the payload they carry
// is never applied directly. changed reports whether the local lines differ
// from the stored ones.
func (r *Resolver) Refresh(ctx context.Context, key string) (changed bool, err error) {
	if r.partition == "" || key != StorageKey(r.partition) {
		return false, nil
	}
	lines, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	if slices.Equal(lines, r.lines) {
		return false, nil
	}
	r.lines = lines
	return true, nil
}

// Add puts qty units of product into the partition. It is a no-op without a
// partition.
func (r *Resolver) Add(ctx context.Context, product domain.Product, qty int) (Cart, error) {
	if qty < 1 {
		return r.View(), ErrInvalidQuantity
	}
	return r.update(ctx, func(lines []domain.CartLine) []domain.CartLine {
		return AddLine(lines, product.Line(qty))
	})
}

// UpdateQuantity sets the quantity of productID; below one removes the line.
func (r *Resolver) UpdateQuantity(ctx context.Context, productID string, qty int) (Cart, error) {
	return r.update(ctx, func(lines []domain.CartLine) []domain.CartLine {
		return SetQuantity(lines, productID, qty)
	})
}

// Remove drops productID from the partition.
func (r *Resolver) Remove(ctx context.Context, productID string) (Cart, error) {
	return r.update(ctx, func(lines []domain.CartLine) []domain.CartLine {
		return RemoveLine(lines, productID)
	})
}

// Clear empties the partition.
func (r *Resolver) Clear(ctx context.Context) (Cart, error) {
	return r.update(ctx, func([]domain.CartLine) []domain.CartLine { return nil })
}

// update reads the latest stored lines, applies fn and writes the result, so
// concurrent edits by the counterpart are not overwritten with a stale view.
func (r *Resolver) update(ctx context.Context, fn func([]domain.CartLine) []domain.CartLine) (Cart, error) {
	if r.partition == "" {
		return r.View(), nil
	}
	cur, err := r.load(ctx)
	if err != nil {
		return r.View(), err
	}
	next := fn(cur)
	key := StorageKey(r.partition)
	if len(next) == 0 {
		err = r.store.Remove(ctx, key, r.origin)
	} else {
		err = kv.SaveJSON(ctx, r.store, key, next, r.origin)
	}
	if err != nil {
		return r.View(), err
	}
	r.lines = next
	return r.View(), nil
}

func (r *Resolver) load(ctx context.Context) ([]domain.CartLine, error) {
	if r.partition == "" {
		return nil, nil
	}
	var lines []domain.CartLine
	if _, err := kv.LoadJSON(ctx, r.store, StorageKey(r.partition), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func isShared(partition string) bool {
	return strings.HasPrefix(partition, "shared:")
}
