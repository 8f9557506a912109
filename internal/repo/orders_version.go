package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// OrdersVersionFor counts userID's orders and finds the most recent update.
func OrdersVersionFor(ctx context.Context, db *gorm.DB, userID string) (domain.OrdersVersion, error) {
	orders := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Order{}).Where("user_id = ?", userID)
	}

	var v domain.OrdersVersion
	if err := orders().Count(&v.Count).Error; err != nil {
		return domain.OrdersVersion{}, err
	}
	if v.Count == 0 {
		return v, nil
	}

	// ORDER BY rather than MAX(): SQLite returns MAX over DATETIME as TEXT.
	var last domain.Order
	if err := orders().Select("updated_at").Order("updated_at DESC").Take(&last).Error; err != nil {
		return domain.OrdersVersion{}, err
	}
	v.Latest = last.UpdatedAt.UTC()
	return v, nil
}
