// Execution context HTTP handlers.
//
// A context is one logged-in client view. Its id is returned on creation
// and must be sent in X-Context-ID on every context-scoped request.
//   - POST   /contexts              (login and open)
//   - GET    /contexts/{id}         (state snapshot)
//   - DELETE /contexts/{id}         (close)
//   - GET    /contexts/{id}/events  (WebSocket event stream)
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-socialcart-backend/internal/http/middleware"
	"github.com/tbourn/go-socialcart-backend/internal/viewer"
)

// eventsKeepAlive is how often an idle event stream pings the client and
// refreshes the context's last-seen time.
const eventsKeepAlive = 30 * time.Second

// OpenContextRequest logs a user in by username.
type OpenContextRequest struct {
	Username string `json:"username" binding:"required,max=64" example:"janedoe"`
}

// OpenContext godoc
// @ID          openContext
// @Summary     Log in and open a context
// @Description Resolves the user, marks them online, evaluates their session and starts watching shared state.
// @Tags        Contexts
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.OpenContextRequest  true  "Login payload"
// @Success     201   {object} viewer.State
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     404   {object} handlers.ErrorResponse "User not found"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /contexts [post]
func (h *Handlers) OpenContext(c *gin.Context) {
	var req OpenContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username is required")
		return
	}
	ctx := c.Request.Context()
	u, err := h.Users.Login(ctx, req.Username)
	if err != nil {
		failErr(c, err)
		return
	}
	v, err := h.Hub.Open(ctx, u)
	if err != nil {
		failErr(c, err)
		return
	}
	st, err := v.State(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header(middleware.HeaderContextID, v.ID())
	ok(c, http.StatusCreated, st)
}

// GetContext godoc
// @ID          getContext
// @Summary     Context state
// @Description Returns location, session and current cart of the context.
// @Tags        Contexts
// @Produce     json
// @Param       id  path     string  true  "Context id"
// @Success     200 {object} viewer.State
// @Failure     404 {object} handlers.ErrorResponse "Unknown context"
// @Router      /contexts/{id} [get]
func (h *Handlers) GetContext(c *gin.Context) {
	v, err := h.Hub.Get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	st, err := v.State(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// CloseContext godoc
// @ID          closeContext
// @Summary     Close a context
// @Description Stops the context. Closing a user's last context marks them offline.
// @Tags        Contexts
// @Param       id  path  string  true  "Context id"
// @Success     204 {string} string "No Content"
// @Failure     404 {object} handlers.ErrorResponse "Unknown context"
// @Router      /contexts/{id} [delete]
func (h *Handlers) CloseContext(c *gin.Context) {
	if err := h.Hub.Close(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ContextEvents godoc
// @ID          contextEvents
// @Summary     Stream context events
// @Description Upgrades to a WebSocket and writes one JSON viewer.Event per message until the context closes.
// @Tags        Contexts
// @Param       id  path  string  true  "Context id"
// @Success     101 {object} viewer.Event
// @Failure     404 {object} handlers.ErrorResponse "Unknown context"
// @Router      /contexts/{id}/events [get]
func (h *Handlers) ContextEvents(c *gin.Context) {
	v, err := h.Hub.Get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	lg := middleware.LoggerFrom(c).With().Str("context_id", v.ID()).Logger()

	origins := h.EventsAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		lg.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "context closed"); closeErr != nil {
			lg.Debug().Err(closeErr).Msg("websocket close failed")
		}
	}()

	// The client never sends data; CloseRead handles its close frame and
	// cancels ctx when the peer goes away.
	ctx := ws.CloseRead(c.Request.Context())
	lg.Info().Msg("event stream attached")
	streamEvents(ctx, ws, v)
	lg.Info().Msg("event stream detached")
}

// streamEvents forwards v's events to ws until ctx is done, the context
// closes or a write fails.
func streamEvents(ctx context.Context, ws *websocket.Conn, v *viewer.Viewer) {
	t := time.NewTicker(eventsKeepAlive)
	defer t.Stop()
	events := v.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			v.Touch()
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, ws, ev)
			cancel()
			if err != nil {
				return
			}
		case <-t.C:
			v.Touch()
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
