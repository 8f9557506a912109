package kv

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/repo"
)

// SQLStore keeps entries in the kv_entries table and notifies subscribers
// through an in-process Bus once a write has committed.
type SQLStore struct {
	DB  *gorm.DB
	bus *Bus
}

// NewSQLStore wraps db. The kv_entries table must already be migrated
// (repo.AutoMigrate).
func NewSQLStore(db *gorm.DB, buffer int) *SQLStore {
	return &SQLStore{DB: db, bus: NewBus(buffer)}
}

// Get returns the value stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, err := repo.GetKV(ctx, s.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Value, true, nil
}

// Set writes value under key (last write wins) and publishes the change.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, origin string) error {
	if err := repo.PutKV(ctx, s.DB, key, value, origin); err != nil {
		return err
	}
	s.bus.Publish(Change{Key: key, Value: value, Origin: origin, At: time.Now().UTC()})
	return nil
}

// Remove deletes key. Removing a missing key is not an error and publishes nothing.
func (s *SQLStore) Remove(ctx context.Context, key, origin string) error {
	existed, err := repo.DeleteKV(ctx, s.DB, key)
	if err != nil {
		return err
	}
	if existed {
		s.bus.Publish(Change{Key: key, Deleted: true, Origin: origin, At: time.Now().UTC()})
	}
	return nil
}

// Watch subscribes to changes under prefix.
func (s *SQLStore) Watch(ctx context.Context, prefix string) (<-chan Change, error) {
	return s.bus.Subscribe(ctx, prefix)
}

// Keys lists stored keys under prefix.
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return repo.ListKVKeys(ctx, s.DB, prefix)
}

// Close ends every subscription. The database handle is owned by the caller.
func (s *SQLStore) Close() error {
	s.bus.Close()
	return nil
}
