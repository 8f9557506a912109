// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., ai_unavailable, checkout_failed) are reserved for
//     business logic errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Usage:
//   - Handlers pass service errors to `failErr()`, which picks the most specific
//     code and status from errorTable; anything unmatched is a 500.
//   - Clients are expected to branch on these codes for programmatic error handling.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "conflict",
//     "message": "you already have a pending request with this user"
//   }

package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-socialcart-backend/internal/ai"
	"github.com/tbourn/go-socialcart-backend/internal/cart"
	"github.com/tbourn/go-socialcart-backend/internal/messaging"
	"github.com/tbourn/go-socialcart-backend/internal/navigation"
	"github.com/tbourn/go-socialcart-backend/internal/pairing"
	"github.com/tbourn/go-socialcart-backend/internal/services"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeGone         = "gone"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeAIUnavailable    = "ai_unavailable"
	ErrCodeCheckoutFailed   = "checkout_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// errorMapping binds a sentinel error to its HTTP status and code.
type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is consulted in order with errors.Is.
var errorTable = []errorMapping{
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrProductNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrOrderNotFound, http.StatusNotFound, ErrCodeNotFound},
	{pairing.ErrInvitationNotFound, http.StatusNotFound, ErrCodeNotFound},
	{viewer.ErrUnknownContext, http.StatusNotFound, ErrCodeNotFound},

	{services.ErrUsernameTaken, http.StatusConflict, ErrCodeConflict},
	{services.ErrDuplicateReview, http.StatusConflict, ErrCodeConflict},
	{pairing.ErrDuplicatePending, http.StatusConflict, ErrCodeConflict},
	{pairing.ErrAlreadyInSession, http.StatusConflict, ErrCodeConflict},
	{pairing.ErrNotPending, http.StatusConflict, ErrCodeConflict},
	{viewer.ErrNoSession, http.StatusConflict, ErrCodeConflict},

	{viewer.ErrNotRecipient, http.StatusForbidden, ErrCodeForbidden},
	{viewer.ErrNotParticipant, http.StatusForbidden, ErrCodeForbidden},
	{viewer.ErrClosed, http.StatusGone, ErrCodeGone},

	{services.ErrInvalidUsername, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidName, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrSelfFollow, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidRating, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidPoints, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrEmptyCart, http.StatusBadRequest, ErrCodeBadRequest},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, ErrCodeBadRequest},
	{cart.ErrUnknownDelivery, http.StatusBadRequest, ErrCodeBadRequest},
	{pairing.ErrSelfInvitation, http.StatusBadRequest, ErrCodeBadRequest},
	{messaging.ErrEmptyText, http.StatusBadRequest, ErrCodeBadRequest},
	{messaging.ErrSelfMessage, http.StatusBadRequest, ErrCodeBadRequest},
	{messaging.ErrTooLong, http.StatusBadRequest, ErrCodeBadRequest},
	{navigation.ErrInvalidPath, http.StatusBadRequest, ErrCodeBadRequest},
	{ai.ErrEmptyInput, http.StatusBadRequest, ErrCodeBadRequest},
	{ai.ErrUnsupportedImage, http.StatusBadRequest, ErrCodeBadRequest},

	{ai.ErrNotConfigured, http.StatusBadGateway, ErrCodeAIUnavailable},
	{ai.ErrUnavailable, http.StatusBadGateway, ErrCodeAIUnavailable},
}

// classify returns the status and code for err, defaulting to 500.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
