// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the user
// directory: profiles, the follow graph and eco points.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
// Counter maintenance for follows is composed by services.UserService inside
// a transaction.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts u. A taken username yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpsertSeedUser inserts u unless a row with the same id exists. Existing
// rows are left untouched so counters and points survive restarts.
func UpsertSeedUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(u).Error
}

// GetUser fetches a profile by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername fetches a profile by its (already normalized) username.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UsernameTaken reports whether username belongs to a user other than exceptID.
func UsernameTaken(ctx context.Context, db *gorm.DB, username, exceptID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&n).Error
	return n > 0, err
}

// ListUsersPage returns users ordered by username.
func ListUsersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Order("username asc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountUsers returns the number of profiles.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&n).Error
	return n, err
}

// UpdateUserProfile updates the display attributes of a profile. Returns
// ErrNotFound if nothing matched.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FollowingIDs returns the ids followerID follows, oldest edge first.
func FollowingIDs(ctx context.Context, db *gorm.DB, followerID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.Follow{}).
		Where("follower_id = ?", followerID).
		Order("created_at asc").
		Pluck("followee_id", &ids).Error
	return ids, err
}

// FollowExists reports whether followerID follows followeeID.
func FollowExists(ctx context.Context, db *gorm.DB, followerID, followeeID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&n).Error
	return n > 0, err
}

// InsertFollow creates the edge followerID -> followeeID.
func InsertFollow(ctx context.Context, db *gorm.DB, followerID, followeeID string) error {
	return db.WithContext(ctx).Create(&domain.Follow{
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  time.Now().UTC(),
	}).Error
}

// DeleteFollow removes the edge followerID -> followeeID.
func DeleteFollow(ctx context.Context, db *gorm.DB, followerID, followeeID string) error {
	return db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&domain.Follow{}).Error
}

// AdjustFollowCounters adds delta to the follower's "following" counter and
// to the followee's "followers" counter. Counters never drop below zero.
func AdjustFollowCounters(ctx context.Context, db *gorm.DB, followerID, followeeID string, delta int) error {
	if err := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", followerID).
		Update("following", gorm.Expr("MAX(following + ?, 0)", delta)).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", followeeID).
		Update("followers", gorm.Expr("MAX(followers + ?, 0)", delta)).Error
}

// AddEcoPoints credits points (>= 0) to a user. Returns ErrNotFound if the
// user does not exist.
func AddEcoPoints(ctx context.Context, db *gorm.DB, id string, points int64) error {
	if points < 0 {
		return errors.New("eco points must not be negative")
	}
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Update("eco_points", gorm.Expr("eco_points + ?", points))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOnline stores the presence flag.
func SetOnline(ctx context.Context, db *gorm.DB, id string, online bool) error {
	return db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("is_online", online).Error
}

// Leaderboard returns the top users by eco points, ties broken by username.
func Leaderboard(ctx context.Context, db *gorm.DB, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Order("eco_points desc").Order("username asc").Limit(limit).Find(&out).Error
	return out, err
}
