// Package navigation moves an execution context between locations and lets
// pair shopping participants follow each other.
package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
	"github.com/tbourn/go-socialcart-backend/internal/pairing"
)

// SharedKey is the well-known key navigation records are published to.
const SharedKey = "nav:shared"

// ErrInvalidPath is returned for paths that are not absolute.
var ErrInvalidPath = errors.New("path must start with /")

// Broadcaster publishes and receives shared navigation for one context.
// Local is called whenever the context itself should move.
type Broadcaster struct {
	Store  kv.Store
	Origin string
	Local  func(path string)

	now func() time.Time
}

// New returns a broadcaster for origin.
func New(store kv.Store, origin string, local func(string)) *Broadcaster {
	return &Broadcaster{
		Store:  store,
		Origin: origin,
		Local:  local,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NavigateShared moves the context to path and, while a session is active,
// publishes the move so the counterpart follows.
func (b *Broadcaster) NavigateShared(ctx context.Context, path, userID string, session pairing.State) (domain.NavigationRecord, error) {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		return domain.NavigationRecord{}, ErrInvalidPath
	}
	if b.Local != nil {
		b.Local(path)
	}
	rec := domain.NavigationRecord{
		Path:        path,
		InitiatorID: userID,
		Origin:      b.Origin,
		Timestamp:   b.now(),
	}
	if !session.Active() {
		return rec, nil
	}
	if err := kv.SaveJSON(ctx, b.Store, SharedKey, rec, b.Origin); err != nil {
		return rec, err
	}
	return rec, nil
}

// Receive applies a change notification. The record is followed only when it
// comes from another context, a session is active and the initiator is the
// counterpart of userID. followed reports whether Local was called.
func (b *Broadcaster) Receive(c kv.Change, userID string, session pairing.State) (rec domain.NavigationRecord, followed bool) {
	if c.Key != SharedKey || c.Deleted || !c.FromOther(b.Origin) {
		return rec, false
	}
	if err := json.Unmarshal(c.Value, &rec); err != nil {
		return rec, false
	}
	counterpart, ok := session.Counterpart(userID)
	if !ok || rec.InitiatorID != counterpart.ID {
		return rec, false
	}
	if b.Local != nil {
		b.Local(rec.Path)
	}
	return rec, true
}
