package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// GetKV returns the entry stored under key, or ErrNotFound.
func GetKV(ctx context.Context, db *gorm.DB, key string) (*domain.KVEntry, error) {
	var e domain.KVEntry
	err := db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutKV writes value under key, replacing any previous value (last write wins).
func PutKV(ctx context.Context, db *gorm.DB, key string, value []byte, origin string) error {
	e := &domain.KVEntry{Key: key, Value: value, Origin: origin, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "origin", "updated_at"}),
		}).
		Create(e).Error
}

// DeleteKV removes key. It reports whether a row existed.
func DeleteKV(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	res := db.WithContext(ctx).Where("key = ?", key).Delete(&domain.KVEntry{})
	return res.RowsAffected > 0, res.Error
}

// ListKVKeys returns the keys starting with prefix, sorted.
func ListKVKeys(ctx context.Context, db *gorm.DB, prefix string) ([]string, error) {
	var keys []string
	err := db.WithContext(ctx).Model(&domain.KVEntry{}).
		Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("key asc").
		Pluck("key", &keys).Error
	return keys, err
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
