package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

func TestSQLiteDSN(t *testing.T) {
	const pragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	if got := sqliteDSN("app.db"); got != "app.db?"+pragmas {
		t.Fatalf("plain path: %s", got)
	}
	if got := sqliteDSN("file:x?mode=memory&cache=shared"); got != "file:x?mode=memory&cache=shared&"+pragmas {
		t.Fatalf("uri path: %s", got)
	}
}

func openFileDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestOpenSQLite_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "socialcart.db")
	openFileDB(t, path)
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("parent dir not created: %v", err)
	}
}

func TestOpenSQLite_ParentIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if db, err := OpenSQLite(filepath.Join(blocker, "app.db")); err == nil || db != nil {
		t.Fatalf("expected error, got db=%v err=%v", db, err)
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db := openFileDB(t, filepath.Join(t.TempDir(), "app.db"))
	sqlDB, _ := db.DB()
	if got := sqlDB.Stats().MaxOpenConnections; got != maxOpenConns {
		t.Fatalf("MaxOpenConnections=%d", got)
	}

	// Hold two connections at once so the second is a fresh one.
	ctx := context.Background()
	c1, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	for _, pragma := range []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	} {
		var v1, v2 string
		if err := c1.QueryRowContext(ctx, "PRAGMA "+pragma.name).Scan(&v1); err != nil {
			t.Fatalf("%s on conn 1: %v", pragma.name, err)
		}
		if err := c2.QueryRowContext(ctx, "PRAGMA "+pragma.name).Scan(&v2); err != nil {
			t.Fatalf("%s on conn 2: %v", pragma.name, err)
		}
		if strings.ToLower(v1) != pragma.want || strings.ToLower(v2) != pragma.want {
			t.Fatalf("%s: conn1=%q conn2=%q want %q", pragma.name, v1, v2, pragma.want)
		}
	}
}

func TestAutoMigrate_SchemaAndConstraints(t *testing.T) {
	db := openFileDB(t, filepath.Join(t.TempDir(), "app.db"))
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.User{}, &domain.Follow{}, &domain.Review{}, &domain.Order{}, &domain.Idempotency{}, &domain.KVEntry{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("missing table for %T", tbl)
		}
	}

	now := time.Now().UTC()
	for _, u := range []domain.User{
		{ID: "u1", Username: "janedoe", Name: "Jane", CreatedAt: now, UpdatedAt: now},
		{ID: "u2", Username: "johnsmith", Name: "John", CreatedAt: now, UpdatedAt: now},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("insert %s: %v", u.ID, err)
		}
	}

	err := db.Create(&domain.User{ID: "u3", Username: "janedoe", Name: "Other", CreatedAt: now, UpdatedAt: now}).Error
	if !isUniqueViolation(err) || !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("duplicate username: %v", err)
	}
	if err := db.Create(&domain.Follow{FollowerID: "u1", FolloweeID: "u2", CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert follow: %v", err)
	}
	if err := db.Create(&domain.Follow{FollowerID: "u1", FolloweeID: "ghost", CreatedAt: now}).Error; err == nil {
		t.Fatal("foreign keys not enforced")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := map[error]bool{
		nil:                   false,
		gorm.ErrDuplicatedKey: true,
		errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"): true,
		errors.New("FOREIGN KEY constraint failed"):                                      false,
	}
	for err, want := range cases {
		if got := isUniqueViolation(err); got != want {
			t.Errorf("isUniqueViolation(%v) = %v", err, got)
		}
	}
}

func TestEnableTracing_RegistersPlugin(t *testing.T) {
	db := newRepoDB(t)
	if err := EnableTracing(db); err != nil {
		t.Fatalf("EnableTracing: %v", err)
	}
	if len(db.Config.Plugins) == 0 {
		t.Fatal("tracing plugin not registered")
	}
}
