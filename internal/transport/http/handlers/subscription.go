package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nklact/normaai/internal/transport/http/middleware"
	"github.com/nklact/normaai/internal/usecase"
)

// SubscriptionHandler exposes plan management endpoints for the
// authenticated account.
type SubscriptionHandler struct {
	subscriptions *usecase.SubscriptionService
}

// NewSubscriptionHandler constructs a subscription handler.
func NewSubscriptionHandler(subscriptions *usecase.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// RegisterRoutes binds subscription routes under the supplied group. Every
// route requires an authenticated caller.
func (h *SubscriptionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.CreateSubscription)
	r.PUT("/plan", h.ChangePlan)
	r.PUT("/billing-period", h.ChangeBillingPeriod)
	r.DELETE("", h.CancelSubscription)
	r.GET("/status", h.Status)
	r.POST("/link-purchase", h.LinkPurchase)
	r.POST("/sync", h.Sync)
}

// CreateSubscription godoc
// @Summary Create a subscription
// @Description Provisions a plan for purchases completed outside the app stores.
// @Tags Subscription
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubscriptionCreateRequest true "Subscription payload"
// @Success 200 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/subscription [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req SubscriptionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid subscription payload"))
		return
	}

	account, err := h.subscriptions.CreateSubscription(c.Request.Context(), accountID, req.PlanID, req.BillingPeriod)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "subscription creation failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}

// ChangePlan godoc
// @Summary Change the subscription plan
// @Description Switches the active subscription to a different product tier.
// @Tags Subscription
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PlanChangeRequest true "Plan change payload"
// @Success 200 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/subscription/plan [put]
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PlanChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid plan payload"))
		return
	}

	account, err := h.subscriptions.ChangePlan(c.Request.Context(), accountID, req.PlanID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrNoActiveSubscription, Status: http.StatusBadRequest, Message: "no active subscription to change"},
		}, http.StatusInternalServerError, "plan change failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}

// ChangeBillingPeriod godoc
// @Summary Change the billing period
// @Description Switches the active subscription between monthly and yearly billing.
// @Tags Subscription
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BillingPeriodChangeRequest true "Billing period payload"
// @Success 200 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/subscription/billing-period [put]
func (h *SubscriptionHandler) ChangeBillingPeriod(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req BillingPeriodChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid billing period payload"))
		return
	}

	account, err := h.subscriptions.ChangeBillingPeriod(c.Request.Context(), accountID, req.BillingPeriod)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrNoActiveSubscription, Status: http.StatusBadRequest, Message: "no active subscription to change"},
		}, http.StatusInternalServerError, "billing period change failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}

// CancelSubscription godoc
// @Summary Cancel the subscription
// @Description Marks the subscription cancelled. Paid access continues until the next billing date.
// @Tags Subscription
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/subscription [delete]
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	account, err := h.subscriptions.CancelSubscription(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrNoActiveSubscription, Status: http.StatusBadRequest, Message: "no active subscription to cancel"},
		}, http.StatusInternalServerError, "subscription cancellation failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}

// Status godoc
// @Summary Get the subscription status
// @Description Reports the active plan, billing period, next billing date, and catalogue price.
// @Tags Subscription
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SubscriptionStatusResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/subscription/status [get]
func (h *SubscriptionHandler) Status(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	status, err := h.subscriptions.Status(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "subscription status lookup failed")
		return
	}

	c.JSON(http.StatusOK, SubscriptionStatusResponse{
		AccountType:       status.AccountType,
		Status:            status.Status,
		BillingPeriod:     status.BillingPeriod,
		ExpiresAt:         status.ExpiresAt,
		NextBillingDate:   status.NextBillingDate,
		Platform:          status.Platform,
		MessagesRemaining: status.MessagesRemaining,
		PriceRSD:          status.PriceRSD,
	})
}

// LinkPurchase godoc
// @Summary Link a store purchase to the account
// @Description Forwards the store receipt to the billing provider and syncs the resulting subscriber state.
// @Tags Subscription
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PurchaseLinkRequest true "Purchase link payload"
// @Success 200 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/subscription/link-purchase [post]
func (h *SubscriptionHandler) LinkPurchase(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PurchaseLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid purchase payload"))
		return
	}

	account, err := h.subscriptions.LinkPurchase(c.Request.Context(), accountID, req.ReceiptToken, req.IsRestore)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "purchase linking failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}

// Sync godoc
// @Summary Sync subscription state from the billing provider
// @Description Pulls the subscriber record from the provider and reconciles the account.
// @Tags Subscription
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AccountSummary
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/subscription/sync [post]
func (h *SubscriptionHandler) Sync(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	account, err := h.subscriptions.SyncFromProvider(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "subscription sync failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(*account))
}
