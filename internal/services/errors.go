// Package services defines the business logic for the user directory,
// reviews, checkout and the AI assistant. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// User directory errors.
var (
	// ErrUserNotFound indicates that no profile matches the given id or username.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned when signup or a profile update picks a
	// username that belongs to another user.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidUsername is returned for usernames outside 3-32 characters of
	// letters, digits, '.', '_' or '-'.
	ErrInvalidUsername = errors.New("username must be 3-32 letters, digits, '.', '_' or '-'")

	// ErrInvalidName is returned for an empty or overlong display name.
	ErrInvalidName = errors.New("name must be 1-128 characters")

	// ErrSelfFollow is returned when a user tries to follow themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")

	// ErrInvalidPoints is returned when an award would lower a balance.
	ErrInvalidPoints = errors.New("eco points must be positive")
)

// Catalog, review and checkout errors.
var (
	// ErrProductNotFound indicates an unknown catalog product id.
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrDuplicateReview is returned when a user reviews the same product twice.
	ErrDuplicateReview = errors.New("you already reviewed this product")

	// ErrEmptyCart is returned when checking out an empty partition.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrOrderNotFound indicates an unknown order or one owned by another user.
	ErrOrderNotFound = errors.New("order not found")
)
