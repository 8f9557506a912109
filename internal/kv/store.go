// Package kv is the shared key-value store that execution contexts coordinate
// through. Every write carries the origin (execution context id) that made it,
// and every subscriber receives the change with that origin attached so it can
// ignore its own writes. Two drivers exist: SQLite through GORM with an
// in-process fan-out, and Badger with its native change feed.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-socialcart-backend/internal/observability"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Change describes one write to the store.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
	Origin  string
	At      time.Time
}

// FromOther reports whether the change was written by a context other than origin.
func (c Change) FromOther(origin string) bool { return c.Origin != origin }

// Store is the shared storage contract: get/set/remove plus a change feed.
//
// Watch delivers every change whose key starts with prefix until ctx is done,
// then closes the channel. Slow subscribers lose notifications rather than
// stalling writers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, origin string) error
	Remove(ctx context.Context, key, origin string) error
	Watch(ctx context.Context, prefix string) (<-chan Change, error)
	Close() error
}

// LoadJSON decodes the document under key into v. A missing key reports
// found=false. A document that fails to decode is removed and also reported
// as not found, so callers continue from the empty state.
func LoadJSON(ctx context.Context, s Store, key string, v any) (found bool, err error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("clearing corrupted store entry")
		observability.CorruptEntries.Inc()
		if rmErr := s.Remove(ctx, key, ""); rmErr != nil {
			return false, rmErr
		}
		return false, nil
	}
	return true, nil
}

// SaveJSON encodes v and writes it under key on behalf of origin.
func SaveJSON(ctx context.Context, s Store, key string, v any, origin string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, origin)
}
