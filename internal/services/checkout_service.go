// Package services – CheckoutService
//
// This file implements checkout: pricing a cart partition with a delivery
// option, persisting the order and crediting eco points in one transaction.
// Replays of the same Idempotency-Key return the stored order instead of
// placing a second one.
package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/cart"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/repo"
	"github.com/tbourn/go-socialcart-backend/internal/utils"
)

// CheckoutScope namespaces checkout idempotency records.
const CheckoutScope = "checkout"

// CheckoutService places orders.
type CheckoutService struct {
	DB *gorm.DB
	// IdempotencyTTL bounds how long a key replays its order; 0 means 24h.
	IdempotencyTTL time.Duration

	now func() time.Time
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(db *gorm.DB, ttl time.Duration) *CheckoutService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CheckoutService{DB: db, IdempotencyTTL: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Replay returns the order previously placed by userID with idemKey.
func (s *CheckoutService) Replay(ctx context.Context, userID, idemKey string) (*domain.Order, bool, error) {
	if idemKey == "" {
		return nil, false, nil
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, CheckoutScope, idemKey, s.now())
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	o, err := repo.GetOrder(ctx, s.DB, rec.ResourceID, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return o, true, nil
}

// Place prices c with the delivery option and records the order for userID.
// The delivery bonus is credited to the user in the same transaction. The
// caller clears the partition after a successful placement.
//
// Errors: ErrEmptyCart, cart.ErrUnknownDelivery, ErrUserNotFound.
func (s *CheckoutService) Place(ctx context.Context, userID string, c cart.Cart, delivery, idemKey string) (*domain.Order, error) {
	tr := otel.Tracer("services/CheckoutService")
	ctx, span := tr.Start(ctx, "Place",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("cart.partition", c.Partition),
			attribute.String("delivery", delivery),
		),
	)
	defer span.End()

	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	opt, err := cart.LookupDelivery(delivery)
	if err != nil {
		return nil, err
	}
	totals := cart.ComputeTotals(c, opt)
	order := &domain.Order{
		ID:               uuid.NewString(),
		UserID:           userID,
		PartitionKey:     c.Partition,
		Delivery:         string(opt.ID),
		Lines:            c.Lines,
		SubtotalCents:    totals.SubtotalCents,
		ShippingCents:    totals.DeliveryCents,
		TotalCents:       totals.TotalCents,
		EcoPointsAwarded: int64(totals.EcoPointsBonus),
		CreatedAt:        s.now(),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		if order.EcoPointsAwarded > 0 {
			if err := repo.AddEcoPoints(ctx, tx, userID, order.EcoPointsAwarded); err != nil {
				if isNotFound(err) {
					return ErrUserNotFound
				}
				return err
			}
		} else if _, err := repo.GetUser(ctx, tx, userID); err != nil {
			if isNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		if idemKey != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, userID, CheckoutScope, idemKey, order.ID, http.StatusCreated, s.IdempotencyTTL); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won; serve its order.
		if prev, ok, rerr := s.Replay(ctx, userID, idemKey); rerr == nil && ok {
			return prev, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListPage returns a page of userID's orders, most recent first, and the total.
func (s *CheckoutService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountOrders(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Order{}, 0, nil
	}
	items, err := repo.ListOrdersPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Version summarizes userID's orders for ETags.
func (s *CheckoutService) Version(ctx context.Context, userID string) (domain.OrdersVersion, error) {
	return repo.OrdersVersionFor(ctx, s.DB, userID)
}

// Get returns one of userID's orders.
func (s *CheckoutService) Get(ctx context.Context, userID, id string) (*domain.Order, error) {
	o, err := repo.GetOrder(ctx, s.DB, id, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}
