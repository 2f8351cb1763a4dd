package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/infra/billing"
	"github.com/nklact/normaai/internal/usecase"
)

// WebhookHandler receives subscription lifecycle events from the billing
// provider.
type WebhookHandler struct {
	subscriptions *usecase.SubscriptionService
	secret        string
	log           *zap.Logger
}

// NewWebhookHandler constructs a webhook handler. The secret is compared
// against the Authorization header of every delivery.
func NewWebhookHandler(subscriptions *usecase.SubscriptionService, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{subscriptions: subscriptions, secret: secret, log: logger}
}

// HandleProviderEvent godoc
// @Summary Receive a billing provider webhook
// @Description Authenticates the delivery and resyncs the referenced subscriber. Unknown subscribers are acknowledged without action so the provider does not retry forever.
// @Tags Webhook
// @Accept json
// @Produce json
// @Param request body ProviderWebhookPayload true "Webhook payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/webhook/revenuecat [post]
func (h *WebhookHandler) HandleProviderEvent(c *gin.Context) {
	if !billing.VerifyWebhookAuthorization(c.GetHeader("Authorization"), h.secret) {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid webhook authorization"))
		return
	}

	var payload ProviderWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid webhook payload"))
		return
	}

	appUserID := payload.Event.AppUserID
	if payload.Event.OriginalAppUserID != "" {
		appUserID = payload.Event.OriginalAppUserID
	}
	if appUserID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "webhook event missing app_user_id"))
		return
	}

	if err := h.subscriptions.HandleProviderEvent(c.Request.Context(), appUserID); err != nil {
		// Acknowledge anyway. Failed syncs are picked up by the next
		// provider event or a manual sync, and a non-2xx response would
		// put the delivery into the provider's retry queue.
		h.log.Warn("webhook sync failed",
			zap.String("event_type", payload.Event.Type),
			zap.String("app_user_id", appUserID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}
