// User HTTP handlers.
//
// This file exposes the user directory:
//   - POST  /users               (signup)
//   - GET   /users               (list, paginated)
//   - GET   /users/{username}    (profile)
//   - PATCH /users/me            (edit own profile, context required)
//   - POST  /users/{id}/follow   (toggle follow, context required)
//   - GET   /leaderboard         (eco points ranking)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/services"
	"github.com/tbourn/go-socialcart-backend/internal/utils"
)

// SignupRequest is the JSON payload for creating an account.
type SignupRequest struct {
	Name     string `json:"name"     binding:"required,max=128" example:"Jane Doe"`
	Username string `json:"username" binding:"required,max=64"  example:"janedoe"`
}

// UpdateProfileRequest patches the caller's profile. Omitted fields are kept.
type UpdateProfileRequest struct {
	Name      *string `json:"name,omitempty"       example:"Jane D."`
	Username  *string `json:"username,omitempty"   example:"jane.d"`
	Bio       *string `json:"bio,omitempty"        example:"Zero waste, one cart at a time."`
	AvatarURL *string `json:"avatar_url,omitempty" binding:"omitempty,url,max=512"`
}

// ListUsersResponse wraps a page of users and pagination information.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// FollowResponse reports the follow state after a toggle.
type FollowResponse struct {
	Following bool        `json:"following"`
	User      domain.User `json:"user"`
}

// LeaderboardResponse lists users ranked by eco points.
type LeaderboardResponse struct {
	Users []domain.User `json:"users"`
}

// Signup godoc
// @ID          signup
// @Summary     Create an account
// @Description Registers a user with a unique username. New users start with zero eco points.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.SignupRequest  true  "Signup payload"
// @Success     201   {object} domain.User
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     409   {object} handlers.ErrorResponse "Username taken"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /users [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and username are required")
		return
	}
	u, err := h.Users.Signup(c.Request.Context(), req.Name, req.Username)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users (paginated)
// @Tags        Users
// @Produce     json
// @Param       page       query    int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query    int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListUsersResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.Users.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: items, Pagination: newPagination(page, pageSize, total)})
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a profile by username
// @Tags        Users
// @Produce     json
// @Param       username  path     string  true  "Username (a leading @ is ignored)"  example(janedoe)
// @Success     200  {object} domain.User
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /users/{username} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.Users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateMe godoc
// @ID          updateMe
// @Summary     Edit own profile
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       body          body    handlers.UpdateProfileRequest  true  "Fields to change"
// @Success     200  {object} domain.User
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Context required"
// @Failure     409  {object} handlers.ErrorResponse "Username taken"
// @Router      /users/me [patch]
func (h *Handlers) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.Users.UpdateProfile(c.Request.Context(), c.GetString("userID"), services.ProfileUpdate{
		Name:      req.Name,
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// ToggleFollow godoc
// @ID          toggleFollow
// @Summary     Follow or unfollow a user
// @Description Toggles the caller's follow of the user; counters move by one on both sides.
// @Tags        Users
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       id            path    string  true  "User id to follow"  example(u2)
// @Success     200  {object} handlers.FollowResponse
// @Failure     400  {object} handlers.ErrorResponse "Cannot follow yourself"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /users/{id}/follow [post]
func (h *Handlers) ToggleFollow(c *gin.Context) {
	target := strings.TrimSpace(c.Param("id"))
	following, u, err := h.Users.ToggleFollow(c.Request.Context(), c.GetString("userID"), target)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FollowResponse{Following: following, User: *u})
}

// Leaderboard godoc
// @ID          leaderboard
// @Summary     Eco points leaderboard
// @Description Users sorted by eco points descending, then username.
// @Tags        Users
// @Produce     json
// @Param       limit  query    int  false  "Number of users"  minimum(1) maximum(100) default(10)
// @Success     200  {object} handlers.LeaderboardResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /leaderboard [get]
func (h *Handlers) Leaderboard(c *gin.Context) {
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), 10), 1, 100)
	users, err := h.Users.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, LeaderboardResponse{Users: users})
}
