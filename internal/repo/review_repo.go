package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// CreateReview inserts a review. A second review of the same product by the
// same user yields ErrDuplicate.
func CreateReview(ctx context.Context, db *gorm.DB, productID, userID, author string, rating int, comment string) (*domain.Review, error) {
	r := &domain.Review{
		ID:        uuid.NewString(),
		ProductID: productID,
		UserID:    userID,
		Author:    author,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// ListReviews returns the stored reviews of a product, oldest first.
func ListReviews(ctx context.Context, db *gorm.DB, productID string) ([]domain.Review, error) {
	var out []domain.Review
	err := db.WithContext(ctx).Where("product_id = ?", productID).Order("created_at asc").Find(&out).Error
	return out, err
}
