package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nklact/normaai/internal/transport/http/middleware"
	"github.com/nklact/normaai/internal/usecase"
)

// SessionHandler exposes session inspection and revocation endpoints.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session routes under the supplied group. Every route
// requires an authenticated caller.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.ListSessions)
	r.DELETE("/:session_id", h.RevokeSession)
	r.DELETE("", h.RevokeAllSessions)
}

// ListSessions godoc
// @Summary List active sessions for the authenticated account
// @Description Returns every live session with device metadata. The session backing the current request is flagged.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "session listing failed"))
		return
	}

	currentID, _ := middleware.GetSessionID(c)

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:         s.ID,
			DeviceID:   s.DeviceID,
			DeviceName: s.DeviceName,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
			Current:    s.ID == currentID,
		})
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: summaries, Total: len(summaries)})
}

// RevokeSession godoc
// @Summary Revoke a single session
// @Description Terminates the identified session if it belongs to the authenticated account.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param session_id path string true "Session identifier"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{session_id} [delete]
func (h *SessionHandler) RevokeSession(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.sessions.RevokeSession(c.Request.Context(), accountID, c.Param("session_id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
			{Err: usecase.ErrSessionForbidden, Status: http.StatusForbidden, Message: "session belongs to another account"},
		}, http.StatusInternalServerError, "session revocation failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session revoked"})
}

// RevokeAllSessions godoc
// @Summary Revoke every other session
// @Description Terminates all live sessions except the one backing the current request.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RevokeAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [delete]
func (h *SessionHandler) RevokeAllSessions(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var except *string
	if token, ok := middleware.BearerToken(c); ok {
		except = &token
	}

	revoked, err := h.sessions.RevokeAllSessions(c.Request.Context(), accountID, except)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "bulk session revocation failed"))
		return
	}

	c.JSON(http.StatusOK, RevokeAllResponse{Revoked: revoked})
}
