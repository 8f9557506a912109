package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/catalog"
	"github.com/tbourn/go-socialcart-backend/internal/config"
	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/favorites"
	httpapi "github.com/tbourn/go-socialcart-backend/internal/http"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
	"github.com/tbourn/go-socialcart-backend/internal/messaging"
	"github.com/tbourn/go-socialcart-backend/internal/pairing"
	"github.com/tbourn/go-socialcart-backend/internal/repo"
	"github.com/tbourn/go-socialcart-backend/internal/services"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

// maxMessageText caps chat message length.
const maxMessageText = 1000

// stack owns every long-lived dependency of the server.
type stack struct {
	db      *gorm.DB
	store   kv.Store
	catalog *catalog.Catalog
	users   *services.UserService
	orders  *services.CheckoutService
	hub     *viewer.Hub
	app     httpapi.App
}

// openDB opens the SQLite database and migrates it.
func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// openStore returns the shared key-value store selected by cfg.Storage.
func openStore(cfg config.Config, db *gorm.DB) (kv.Store, error) {
	switch cfg.Storage.Driver {
	case "badger":
		s, err := kv.OpenBadger(cfg.Storage.BadgerPath, cfg.Contexts.EventBuffer)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		return s, nil
	case "sqlite", "":
		return kv.NewSQLStore(db, cfg.Contexts.EventBuffer), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// seedUsers writes the catalog's seed users and their favorites. Existing
// users and non-empty favorites are left untouched. It returns how many seed
// users were offered.
func seedUsers(ctx context.Context, cat *catalog.Catalog, users *services.UserService, favs *favorites.Store) (int, error) {
	seed := cat.Users()
	rows := make([]domain.User, 0, len(seed))
	for _, u := range seed {
		rows = append(rows, u.User())
	}
	n, err := users.Seed(ctx, rows)
	if err != nil {
		return 0, err
	}
	if favs == nil {
		return n, nil
	}
	for _, u := range seed {
		if len(u.Favorites) == 0 {
			continue
		}
		current, err := favs.List(ctx, u.ID)
		if err != nil {
			return n, err
		}
		if len(current) > 0 {
			continue
		}
		if err := kv.SaveJSON(ctx, favs.KV, favorites.Key(u.ID), u.Favorites, "seed"); err != nil {
			return n, fmt.Errorf("seed favorites %s: %w", u.ID, err)
		}
	}
	return n, nil
}

// buildStack wires storage, services, the context hub and the AI service.
func buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	store, err := openStore(cfg, db)
	if err != nil {
		return nil, err
	}

	users := services.NewUserService(db)
	favs := favorites.New(store)
	n, err := seedUsers(ctx, cat, users, favs)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	log.Debug().Int("users", n).Msg("seed users checked")

	orders := services.NewCheckoutService(db, cfg.IdempotencyTTL)
	hub := viewer.NewHub(viewer.Deps{
		Store:       store,
		Invitations: pairing.NewStore(store),
		Messages:    messaging.New(store, maxMessageText),
		Favorites:   favs,
		Users:       users,
		Catalog:     cat,
		Orders:      orders,
		EventBuffer: cfg.Contexts.EventBuffer,
	}, cfg.Contexts.IdleTTL)

	gen, err := ai.NewGenerator(ctx, cfg.AI)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if _, disabled := gen.(ai.Disabled); disabled {
		log.Warn().Msg("GEMINI_API_KEY not set; AI flows will report unavailable")
	}
	images, err := ai.NewImageStore(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &stack{
		db:      db,
		store:   store,
		catalog: cat,
		users:   users,
		orders:  orders,
		hub:     hub,
		app: httpapi.App{
			DB:      db,
			Users:   users,
			Reviews: &services.ReviewService{DB: db, Catalog: cat},
			Orders:  orders,
			Catalog: cat,
			Hub:     hub,
			AI:      ai.NewService(gen, images, cfg.AI.Timeout),
		},
	}, nil
}

// close releases the stack. The hub goes first so that departing contexts
// can still end their sessions in the store.
func (s *stack) close(ctx context.Context) error {
	s.hub.Shutdown(ctx)
	var errs []error
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// purgeIdempotency deletes expired idempotency records every interval until
// ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged idempotency records")
			}
		}
	}
}
