// Package domain defines the persistence models for users, the follow graph,
// orders and reviews, plus the documents exchanged through the shared
// key-value store (invitations, carts, conversations, navigation records).
// Relational types are mapped with GORM.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// DefaultBio is assigned to profiles created through signup.
const DefaultBio = "Just joined SocialCart! Ready to shop and connect."

// User is a profile in the user directory.
//
// Fields:
//   - ID: stable identifier (seed users keep their catalog ids, e.g. "u1").
//   - Username: unique handle used for login and profile lookup.
//   - Name / Bio / AvatarURL: display attributes.
//   - Followers / Following: counters maintained by the follow toggle; they are
//     never recomputed from the follows table, so every mutator keeps them in step.
//   - EcoPoints: balance that only grows (enforced by check constraint and service).
//   - IsOnline: presence flag, true while the user has an open execution context.
//   - FollowingIDs: ids this user follows; loaded from the follows table, not a column.
type User struct {
	ID           string    `json:"id"            gorm:"type:varchar(64);primaryKey"`
	Username     string    `json:"username"      gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	Name         string    `json:"name"          gorm:"type:varchar(128);not null"`
	Bio          string    `json:"bio"           gorm:"type:text;not null;default:''"`
	AvatarURL    string    `json:"avatar_url"    gorm:"type:varchar(512);not null;default:''"`
	Followers    int64     `json:"followers"     gorm:"not null;default:0"`
	Following    int64     `json:"following"     gorm:"not null;default:0"`
	EcoPoints    int64     `json:"eco_points"    gorm:"not null;default:0;index:idx_users_points;check:eco_points >= 0"`
	IsOnline     bool      `json:"is_online"     gorm:"not null;default:false"`
	FollowingIDs []string  `json:"following_ids" gorm:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Participant returns the reference embedded in invitations.
func (u User) Participant() Participant {
	return Participant{ID: u.ID, Username: u.Username, Name: u.Name, AvatarURL: u.AvatarURL}
}

// Follow is one edge of the follow graph: FollowerID follows FolloweeID.
type Follow struct {
	FollowerID string    `json:"follower_id" gorm:"type:varchar(64);primaryKey"`
	FolloweeID string    `json:"followee_id" gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt  time.Time `json:"created_at"`

	Follower User `json:"-" gorm:"foreignKey:FollowerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Followee User `json:"-" gorm:"foreignKey:FolloweeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Follow.
func (Follow) TableName() string { return "follows" }

// Review is a user-submitted product review. A user can review a product once
// (enforced by unique index). Catalog products also ship seed reviews that are
// not stored here.
type Review struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	ProductID string         `json:"product_id" gorm:"type:varchar(64);not null;index;uniqueIndex:ux_review_product_user"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_review_product_user"`
	Author    string         `json:"author"     gorm:"type:varchar(128);not null"`
	Rating    int            `json:"rating"     gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment   string         `json:"comment"    gorm:"type:text;not null;default:''"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// Order is a placed checkout. Lines are a snapshot of the cart partition at
// checkout time.
type Order struct {
	ID               string     `json:"id"                 gorm:"type:char(36);primaryKey"`
	UserID           string     `json:"user_id"            gorm:"type:varchar(64);not null;index:idx_user_orders,priority:1"`
	PartitionKey     string     `json:"partition_key"      gorm:"type:varchar(128);not null"`
	Delivery         string     `json:"delivery"           gorm:"type:varchar(16);not null;check:delivery IN ('eco','standard','express')"`
	Lines            []CartLine `json:"lines"              gorm:"serializer:json;type:text;not null"`
	SubtotalCents    int64      `json:"subtotal_cents"     gorm:"not null"`
	ShippingCents    int64      `json:"shipping_cents"     gorm:"not null"`
	TotalCents       int64      `json:"total_cents"        gorm:"not null"`
	EcoPointsAwarded int64      `json:"eco_points_awarded" gorm:"not null;default:0"`
	CreatedAt        time.Time  `json:"created_at"         gorm:"index:idx_user_orders,priority:2"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }
