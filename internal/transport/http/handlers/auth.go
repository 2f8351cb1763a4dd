package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nklact/normaai/internal/transport/http/middleware"
	"github.com/nklact/normaai/internal/usecase"
)

// AuthHandler exposes registration, login, refresh, and logout endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	identity *usecase.IdentityService
	isDev    bool
}

// AuthHandlerOption configures optional AuthHandler behaviour.
type AuthHandlerOption func(*AuthHandler)

// WithDevMode toggles development-only behaviour (e.g. returning verification tokens).
func WithDevMode(isDev bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.isDev = isDev
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, identity *usecase.IdentityService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{auth: auth, identity: identity}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of rate-limited handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares, registerMiddlewares []gin.HandlerFunc) {
	if r == nil {
		return
	}

	registerChain := append([]gin.HandlerFunc{}, registerMiddlewares...)
	registerChain = append(registerChain, h.Register)
	r.POST("/register", registerChain...)

	loginChain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	loginChain = append(loginChain, h.Login)
	r.POST("/login", loginChain...)

	r.POST("/refresh", h.Refresh)
	r.POST("/logout", middleware.RequireAuth(h.identity), h.Logout)
}

// Register godoc
// @Summary Register a new account
// @Description Creates a registered trial account, inheriting any anonymous trial allowance bound to the device fingerprint.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request payload"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	var fingerprint *string
	if fp := strings.TrimSpace(req.DeviceFingerprint); fp != "" {
		fingerprint = &fp
	}

	ip := clientIPPtr(c)
	userAgent := userAgentPtr(c)

	result, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, fingerprint, req.Device.Info(), ip, userAgent)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	response := RegisterResponse{
		Account:     NewAccountSummary(result.Account),
		AccessToken: result.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(result.ExpiresAt).Seconds()),
		SessionID:   result.SessionID,
	}
	if h.isDev {
		token := result.VerificationToken
		response.DevVerificationToken = &token
	}

	c.JSON(http.StatusCreated, response)
}

// Login godoc
// @Summary Authenticate with email and password
// @Description Issues an access token and records the login session. Soft-deleted accounts inside the grace window are restored.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, req.Device.Info(), clientIPPtr(c), userAgentPtr(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
			{Err: usecase.ErrAccountDeleted, Status: http.StatusGone, Message: "account deleted"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Account:     NewAccountSummary(session.Account),
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(session.ExpiresAt).Seconds()),
		SessionID:   session.SessionID,
	})
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Exchanges a valid or recently expired token for a fresh one, rewriting the backing session in place.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh request payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	session, err := h.auth.Refresh(c.Request.Context(), req.Token, req.Device.Info())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid token"},
			{Err: usecase.ErrAccountDeleted, Status: http.StatusGone, Message: "account deleted"},
		}, http.StatusInternalServerError, "token refresh failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Account:     NewAccountSummary(session.Account),
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(session.ExpiresAt).Seconds()),
		SessionID:   session.SessionID,
	})
}

// Logout godoc
// @Summary Terminate the current session
// @Description Revokes the session behind the presented bearer token.
// @Tags Authentication
// @Security Bearer
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	token, _ := middleware.BearerToken(c)

	if err := h.auth.Logout(c.Request.Context(), accountID, token); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
			{Err: usecase.ErrSessionForbidden, Status: http.StatusForbidden, Message: "session not owned by account"},
		}, http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

func clientIPPtr(c *gin.Context) *string {
	ip := c.ClientIP()
	if ip == "" {
		return nil
	}
	return &ip
}

func userAgentPtr(c *gin.Context) *string {
	ua := c.Request.UserAgent()
	if ua == "" {
		return nil
	}
	return &ua
}
