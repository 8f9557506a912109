// Package favorites keeps per-user sets of favorite product ids. Favorites
// are always personal; a pair shopping session never shares them.
package favorites

import (
	"context"
	"errors"
	"slices"

	"github.com/samber/lo"

	"github.com/tbourn/go-socialcart-backend/internal/kv"
)

// ErrNoUser is returned when favorites are used without an identified user.
var ErrNoUser = errors.New("favorites require a user")

// KeyPrefix prefixes favorites documents.
const KeyPrefix = "favorites:"

// Key returns the store key for userID.
func Key(userID string) string { return KeyPrefix + userID }

// Store reads and writes favorites in the shared store.
type Store struct {
	KV kv.Store
}

// New wraps s.
func New(s kv.Store) *Store { return &Store{KV: s} }

// List returns the favorite product ids of userID in insertion order.
func (s *Store) List(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	var ids []string
	if _, err := kv.LoadJSON(ctx, s.KV, Key(userID), &ids); err != nil {
		return nil, err
	}
	return lo.Uniq(ids), nil
}

// Contains reports whether productID is a favorite of userID.
func (s *Store) Contains(ctx context.Context, userID, productID string) (bool, error) {
	ids, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, productID), nil
}

// Toggle adds productID when absent and removes it when present. added
// reports the resulting membership.
func (s *Store) Toggle(ctx context.Context, userID, productID, origin string) (added bool, ids []string, err error) {
	ids, err = s.List(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	if slices.Contains(ids, productID) {
		ids = lo.Without(ids, productID)
	} else {
		ids = append(ids, productID)
		added = true
	}
	if len(ids) == 0 {
		err = s.KV.Remove(ctx, Key(userID), origin)
	} else {
		err = kv.SaveJSON(ctx, s.KV, Key(userID), ids, origin)
	}
	if err != nil {
		return false, nil, err
	}
	return added, ids, nil
}
