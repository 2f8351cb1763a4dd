package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nklact/normaai/internal/usecase"
)

// PasswordHandler exposes password reset and email verification endpoints.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
	isDev bool
}

// NewPasswordHandler constructs a password handler.
func NewPasswordHandler(reset *usecase.PasswordResetService, isDev bool) *PasswordHandler {
	return &PasswordHandler{reset: reset, isDev: isDev}
}

// RequestReset godoc
// @Summary Request a password reset
// @Description Issues a single-use reset token for the account behind the email. The response is identical whether or not the email is registered.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetRequest true "Password reset request payload"
// @Success 200 {object} PasswordResetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/request [post]
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	request, err := h.reset.RequestReset(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "password reset request failed"))
		return
	}

	response := PasswordResetResponse{
		Message: "if the email is registered, reset instructions have been sent",
	}
	if h.isDev && request.Token != "" {
		token := request.Token
		response.DevToken = &token
	}

	c.JSON(http.StatusOK, response)
}

// ConfirmReset godoc
// @Summary Confirm a password reset
// @Description Consumes the reset token, replaces the password, and revokes every session.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetConfirmRequest true "Password reset confirmation payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/confirm [post]
func (h *PasswordHandler) ConfirmReset(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirmation payload"))
		return
	}

	if err := h.reset.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTokenInvalidOrUsed, Status: http.StatusBadRequest, Message: "token invalid or already used"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
		}, http.StatusInternalServerError, "password reset failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

// VerifyEmail godoc
// @Summary Verify an email address
// @Description Consumes the verification token delivered after registration.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body EmailVerifyRequest true "Email verification payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/verify-email [post]
func (h *PasswordHandler) VerifyEmail(c *gin.Context) {
	var req EmailVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	if err := h.reset.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTokenInvalidOrUsed, Status: http.StatusBadRequest, Message: "token invalid or already used"},
		}, http.StatusInternalServerError, "email verification failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "email verified"})
}
