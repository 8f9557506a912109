// Pair shopping HTTP handlers: session, invitations, navigation and direct
// messages. Every route here is context-scoped.
//
//   - GET    /session                          (active session or null)
//   - DELETE /session                          (end session)
//   - GET    /invitations                      (pending, incoming and sent)
//   - POST   /invitations                      (send)
//   - POST   /invitations/{id}/accept          (recipient only)
//   - POST   /invitations/{id}/decline         (either side)
//   - POST   /navigate                         (move, followed by the counterpart)
//   - GET    /conversations/{userId}/messages  (history)
//   - POST   /conversations/{userId}/messages  (send)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

// SessionResponse wraps the active session, null when idle.
type SessionResponse struct {
	Active  bool                   `json:"active"`
	Session *viewer.SessionPayload `json:"session"`
}

// SendInvitationRequest names the invitee.
type SendInvitationRequest struct {
	ToUserID string `json:"to_user_id" binding:"required" example:"u2"`
}

// AcceptInvitationResponse returns the accepted invitation and the session.
type AcceptInvitationResponse struct {
	Invitation domain.Invitation      `json:"invitation"`
	Session    *viewer.SessionPayload `json:"session"`
}

// NavigateRequest is the path to move to.
type NavigateRequest struct {
	Path string `json:"path" binding:"required,max=512" example:"/product/5"`
}

// SendMessageRequest is a direct message.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required" example:"Look at these bamboo toothbrushes!"`
}

// SendMessageResponse returns the stored message and, when the recipient is
// offline, an informational notice.
type SendMessageResponse struct {
	Message domain.ChatMessage `json:"message"`
	Notice  *domain.Notice     `json:"notice,omitempty"`
}

// MessagesResponse lists a conversation in send order.
type MessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// GetSession godoc
// @ID          getSession
// @Summary     Active pair shopping session
// @Tags        Session
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     200  {object} handlers.SessionResponse
// @Router      /session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	s, err := v.Session(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Active: s != nil, Session: s})
}

// EndSession godoc
// @ID          endSession
// @Summary     End the session
// @Description Removes the backing invitation; both sides return to their personal carts. Carts are not merged.
// @Tags        Session
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     204  {string} string "No Content"
// @Failure     409  {object} handlers.ErrorResponse "No active session"
// @Router      /session [delete]
func (h *Handlers) EndSession(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	if err := v.EndSession(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListInvitations godoc
// @ID          listInvitations
// @Summary     Pending invitations
// @Tags        Session
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Success     200  {object} viewer.InvitationsPayload
// @Router      /invitations [get]
func (h *Handlers) ListInvitations(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	inv, err := v.Invitations(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// SendInvitation godoc
// @ID          sendInvitation
// @Summary     Invite a user to pair shop
// @Description At most one pending invitation exists per pair of users.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       body          body    handlers.SendInvitationRequest  true  "Invitee"
// @Success     201  {object} domain.Invitation
// @Failure     400  {object} handlers.ErrorResponse "Self invitation"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     409  {object} handlers.ErrorResponse "Already pending"
// @Router      /invitations [post]
func (h *Handlers) SendInvitation(c *gin.Context) {
	var req SendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to_user_id is required")
		return
	}
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	inv, err := v.SendInvitation(c.Request.Context(), strings.TrimSpace(req.ToUserID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, inv)
}

// AcceptInvitation godoc
// @ID          acceptInvitation
// @Summary     Accept an invitation
// @Tags        Session
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       id            path    string  true  "Invitation id"
// @Success     200  {object} handlers.AcceptInvitationResponse
// @Failure     403  {object} handlers.ErrorResponse "Not the recipient"
// @Failure     404  {object} handlers.ErrorResponse "Invitation not found"
// @Failure     409  {object} handlers.ErrorResponse "Not pending"
// @Router      /invitations/{id}/accept [post]
func (h *Handlers) AcceptInvitation(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	inv, err := v.AcceptInvitation(ctx, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	s, err := v.Session(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AcceptInvitationResponse{Invitation: inv, Session: s})
}

// DeclineInvitation godoc
// @ID          declineInvitation
// @Summary     Decline or cancel an invitation
// @Tags        Session
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       id            path    string  true  "Invitation id"
// @Success     200  {object} handlers.NoticeResponse
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Invitation not found"
// @Router      /invitations/{id}/decline [post]
func (h *Handlers) DeclineInvitation(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	n, err := v.DeclineInvitation(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, NoticeResponse{Notice: n})
}

// Navigate godoc
// @ID          navigate
// @Summary     Move the context
// @Description During a session the counterpart's contexts follow.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       body          body    handlers.NavigateRequest  true  "Target path"
// @Success     200  {object} domain.NavigationRecord
// @Failure     400  {object} handlers.ErrorResponse "Invalid path"
// @Router      /navigate [post]
func (h *Handlers) Navigate(c *gin.Context) {
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "path is required")
		return
	}
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	rec, err := v.Navigate(c.Request.Context(), req.Path)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Conversation history
// @Tags        Messages
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       userId        path    string  true  "Other participant"  example(u2)
// @Success     200  {object} handlers.MessagesResponse
// @Router      /conversations/{userId}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	msgs, err := v.Messages(c.Request.Context(), c.Param("userId"))
	if err != nil {
		failErr(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	ok(c, http.StatusOK, MessagesResponse{Messages: msgs})
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a direct message
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-Context-ID  header  string  true  "Execution context id"
// @Param       userId        path    string  true  "Recipient"  example(u2)
// @Param       body          body    handlers.SendMessageRequest  true  "Message"
// @Success     201  {object} handlers.SendMessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Empty text"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /conversations/{userId}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text is required")
		return
	}
	v, found := h.currentViewer(c)
	if !found {
		return
	}
	msg, n, err := v.SendMessage(c.Request.Context(), c.Param("userId"), req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, SendMessageResponse{Message: msg, Notice: n})
}
