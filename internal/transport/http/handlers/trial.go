package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nklact/normaai/internal/usecase"
)

// TrialHandler exposes anonymous trial provisioning endpoints.
type TrialHandler struct {
	trials *usecase.TrialService
}

// NewTrialHandler constructs a trial handler.
func NewTrialHandler(trials *usecase.TrialService) *TrialHandler {
	return &TrialHandler{trials: trials}
}

// RegisterRoutes binds trial routes, applying optional middleware ahead of the start endpoint.
func (h *TrialHandler) RegisterRoutes(r *gin.RouterGroup, startMiddlewares ...gin.HandlerFunc) {
	if r == nil {
		return
	}

	chain := append([]gin.HandlerFunc{}, startMiddlewares...)
	chain = append(chain, h.StartTrial)
	r.POST("/start", chain...)

	r.GET("/status/:fingerprint", h.TrialStatus)
}

// StartTrial godoc
// @Summary Start an anonymous device trial
// @Description Provisions a trial account bound to the device fingerprint. Repeat calls return the existing trial.
// @Tags Trial
// @Accept json
// @Produce json
// @Param request body TrialStartRequest true "Trial start payload"
// @Success 200 {object} TrialStatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/trial/start [post]
func (h *TrialHandler) StartTrial(c *gin.Context) {
	var req TrialStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "device_fingerprint is required"))
		return
	}

	account, err := h.trials.StartTrial(c.Request.Context(), req.DeviceFingerprint, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidFingerprint, Status: http.StatusBadRequest, Message: "invalid device fingerprint"},
			{Err: usecase.ErrTrialLimitReached, Status: http.StatusTooManyRequests, Message: "trial limit reached for this network"},
		}, http.StatusInternalServerError, "trial provisioning failed")
		return
	}

	c.JSON(http.StatusOK, TrialStatusResponse{
		AccountID:         account.ID,
		MessagesRemaining: account.MessagesRemaining(),
		TrialStartedAt:    account.TrialStartedAt,
	})
}

// TrialStatus godoc
// @Summary Look up the trial bound to a device
// @Description Returns the trial account state for the supplied fingerprint.
// @Tags Trial
// @Produce json
// @Param fingerprint path string true "Device fingerprint"
// @Success 200 {object} TrialStatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/trial/status/{fingerprint} [get]
func (h *TrialHandler) TrialStatus(c *gin.Context) {
	account, err := h.trials.TrialStatus(c.Request.Context(), c.Param("fingerprint"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidFingerprint, Status: http.StatusBadRequest, Message: "invalid device fingerprint"},
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "no trial for this device"},
		}, http.StatusInternalServerError, "trial lookup failed")
		return
	}

	c.JSON(http.StatusOK, TrialStatusResponse{
		AccountID:         account.ID,
		MessagesRemaining: account.MessagesRemaining(),
		TrialStartedAt:    account.TrialStartedAt,
	})
}
