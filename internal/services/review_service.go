// Package services – ReviewService
//
// This file implements product reviews. Catalog products ship read-only seed
// reviews; users add at most one review per product, persisted in the
// database. Listing merges both sources, seed reviews first.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/repo"
)

// ProductLookup resolves catalog products by id.
type ProductLookup interface {
	Get(id string) (domain.Product, bool)
}

// ReviewService validates and stores user reviews.
type ReviewService struct {
	DB      *gorm.DB
	Catalog ProductLookup

	// MaxCommentRunes truncates overlong comments; 0 means 2000.
	MaxCommentRunes int
}

// Create records a review of productID by userID. The author name is taken
// from the user's profile.
//
// Errors: ErrInvalidRating, ErrProductNotFound, ErrUserNotFound,
// ErrDuplicateReview.
func (s *ReviewService) Create(ctx context.Context, userID, productID string, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if _, ok := s.Catalog.Get(productID); !ok {
		return nil, ErrProductNotFound
	}
	comment = strings.TrimSpace(comment)
	limit := s.MaxCommentRunes
	if limit <= 0 {
		limit = 2000
	}
	if utf8.RuneCountInString(comment) > limit {
		comment = string([]rune(comment)[:limit])
	}

	var out *domain.Review
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.GetUser(ctx, tx, userID)
		if err != nil {
			if isNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		out, err = repo.CreateReview(ctx, tx, productID, u.ID, u.Name, rating, comment)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicateReview
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the seed and submitted reviews of productID.
func (s *ReviewService) List(ctx context.Context, productID string) ([]domain.ProductReview, error) {
	p, ok := s.Catalog.Get(productID)
	if !ok {
		return nil, ErrProductNotFound
	}
	stored, err := repo.ListReviews(ctx, s.DB, productID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProductReview, 0, len(p.Reviews)+len(stored))
	out = append(out, p.Reviews...)
	for _, r := range stored {
		out = append(out, domain.ProductReview{
			ID:      r.ID,
			Author:  r.Author,
			Rating:  r.Rating,
			Comment: r.Comment,
			Date:    r.CreatedAt.Format("2006-01-02"),
		})
	}
	return out, nil
}

// Comments returns the non-empty comments of every review of productID, the
// input of the eco sentiment analysis.
func (s *ReviewService) Comments(ctx context.Context, productID string) ([]string, error) {
	all, err := s.List(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, r := range all {
		if c := strings.TrimSpace(r.Comment); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// isNotFound reports whether err represents a not-found condition.
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repo.ErrNotFound)
}

// isDuplicate reports whether err is a unique-constraint violation.
func isDuplicate(err error) bool {
	if errors.Is(err, repo.ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint failed") || strings.Contains(s, "duplicate key")
}
