// Package kvtest provides shared stores for tests in other packages.
package kvtest

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
)

// NewDB opens an isolated in-memory SQLite database with every model migrated.
func NewDB(t testing.TB, models ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:kvtest_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	models = append([]any{&domain.KVEntry{}}, models...)
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewStore returns a SQLite-backed store. Watch subscriptions on it are live
// as soon as Watch returns.
func NewStore(t testing.TB) *kv.SQLStore {
	t.Helper()
	s := kv.NewSQLStore(NewDB(t), 32)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
