package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// CreateOrder inserts a placed order.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Create(o).Error
}

// GetOrder fetches an order by id scoped to its owner, or ErrNotFound.
func GetOrder(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).First(&o, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrdersPage returns a user's orders, most recent first.
func ListOrdersPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountOrders returns the number of orders placed by userID.
func CountOrders(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Order{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
