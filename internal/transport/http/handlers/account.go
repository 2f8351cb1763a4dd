package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nklact/normaai/internal/transport/http/middleware"
	"github.com/nklact/normaai/internal/usecase"
)

// AccountHandler exposes account, entitlement, and lifecycle endpoints.
type AccountHandler struct {
	entitlements *usecase.EntitlementService
	lifecycle    *usecase.LifecycleService
}

// NewAccountHandler constructs an account handler.
func NewAccountHandler(entitlements *usecase.EntitlementService, lifecycle *usecase.LifecycleService) *AccountHandler {
	return &AccountHandler{entitlements: entitlements, lifecycle: lifecycle}
}

// RegisterRoutes binds account routes under the supplied group. Every route
// requires an authenticated caller.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("/me", h.Me)
	r.GET("/entitlement", h.Entitlement)
	r.POST("/messages/consume", h.ConsumeMessage)
	r.POST("/usage", h.TrackUsage)
	r.DELETE("", h.DeleteAccount)
	r.POST("/restore", h.RestoreAccount)
}

// Me godoc
// @Summary Get the authenticated account
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AccountSummary
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/account/me [get]
func (h *AccountHandler) Me(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	account, err := h.lifecycle.EnsureAccessible(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrAccountDeleted, Status: http.StatusGone, Message: "account scheduled for deletion"},
		}, http.StatusInternalServerError, "account lookup failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}

// Entitlement godoc
// @Summary Get the current entitlement snapshot
// @Description Reports access level, remaining allowance, and expiry for the authenticated account.
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} EntitlementResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/account/entitlement [get]
func (h *AccountHandler) Entitlement(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	snapshot, err := h.entitlements.CheckEntitlement(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "entitlement lookup failed")
		return
	}

	c.JSON(http.StatusOK, NewEntitlementResponse(*snapshot))
}

// ConsumeMessage godoc
// @Summary Consume one message from the account allowance
// @Description Atomically decrements the metered counter. Unmetered tiers pass through untouched.
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} EntitlementResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/account/messages/consume [post]
func (h *AccountHandler) ConsumeMessage(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	snapshot, err := h.entitlements.ConsumeMessage(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrMessageLimitReached, Status: http.StatusTooManyRequests, Message: "message allowance exhausted"},
		}, http.StatusInternalServerError, "message consumption failed")
		return
	}

	c.JSON(http.StatusOK, NewEntitlementResponse(*snapshot))
}

// TrackUsage godoc
// @Summary Record token usage for the current month
// @Description Accumulates character counts and estimated cost against the account's monthly usage row.
// @Tags Account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UsageRequest true "Usage payload"
// @Success 200 {object} UsageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/account/usage [post]
func (h *AccountHandler) TrackUsage(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid usage payload"))
		return
	}

	if err := h.entitlements.TrackUsage(c.Request.Context(), accountID, req.InputChars, req.OutputChars); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "usage tracking failed"))
		return
	}

	c.JSON(http.StatusOK, UsageResponse{
		CostUSD: h.entitlements.EstimateCostUSD(req.InputChars, req.OutputChars),
	})
}

// DeleteAccount godoc
// @Summary Schedule the account for deletion
// @Description Soft-deletes the account with a grace window, revokes all sessions, and cancels any active subscription.
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/account [delete]
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.lifecycle.DeleteAccount(c.Request.Context(), accountID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrTeamHasMembers, Status: http.StatusConflict, Message: "transfer or remove team members before deleting"},
		}, http.StatusInternalServerError, "account deletion failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account scheduled for deletion"})
}

// RestoreAccount godoc
// @Summary Restore a soft-deleted account
// @Description Reverses a pending deletion while the grace window is still open.
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AccountSummary
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/account/restore [post]
func (h *AccountHandler) RestoreAccount(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	account, err := h.lifecycle.RestoreAccount(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrAccountDeleted, Status: http.StatusGone, Message: "grace window has passed"},
		}, http.StatusInternalServerError, "account restore failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}
