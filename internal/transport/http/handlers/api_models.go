package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nklact/normaai/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse describes the readiness payload with per-dependency detail.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// AccountSummary describes a minimal view of an account returned by the API.
type AccountSummary struct {
	ID                string                     `json:"id"`
	Email             string                     `json:"email"`
	AccountType       domain.AccountType         `json:"account_type"`
	Status            domain.AccountStatus       `json:"status"`
	MessagesRemaining *int                       `json:"messages_remaining,omitempty"`
	PremiumExpiresAt  *time.Time                 `json:"premium_expires_at,omitempty"`
	BillingPeriod     *domain.BillingPeriod      `json:"billing_period,omitempty"`
	SubscriptionState *domain.SubscriptionStatus `json:"subscription_status,omitempty"`
	Platform          *domain.Platform           `json:"platform,omitempty"`
	EmailVerified     bool                       `json:"email_verified"`
	CreatedAt         time.Time                  `json:"created_at"`
}

// NewAccountSummary maps an account row into its API representation.
func NewAccountSummary(account domain.Account) AccountSummary {
	return AccountSummary{
		ID:                account.ID,
		Email:             account.Email,
		AccountType:       account.Type,
		Status:            account.Status,
		MessagesRemaining: account.TrialMessagesRemaining,
		PremiumExpiresAt:  account.PremiumExpiresAt,
		BillingPeriod:     account.BillingPeriod,
		SubscriptionState: account.SubscriptionStatus,
		Platform:          account.Platform,
		EmailVerified:     account.EmailVerifiedAt != nil,
		CreatedAt:         account.CreatedAt,
	}
}

// DevicePayload carries optional client device metadata on auth requests.
type DevicePayload struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	OS         string `json:"os"`
	AppVersion string `json:"app_version"`
}

// Info converts the payload into the domain device descriptor.
func (p DevicePayload) Info() domain.DeviceInfo {
	info := domain.DeviceInfo{}
	if p.DeviceID != "" {
		id := p.DeviceID
		info.DeviceID = &id
	}
	if p.DeviceName != "" {
		name := p.DeviceName
		info.Name = &name
	}
	if p.OS != "" {
		os := p.OS
		info.OS = &os
	}
	if p.AppVersion != "" {
		version := p.AppVersion
		info.AppVersion = &version
	}
	return info
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Email             string        `json:"email" binding:"required,email"`
	Password          string        `json:"password" binding:"required,min=8"`
	DeviceFingerprint string        `json:"device_fingerprint"`
	Device            DevicePayload `json:"device"`
}

// RegisterResponse contains registration results and next steps.
type RegisterResponse struct {
	Account     AccountSummary `json:"account"`
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"`
	SessionID   string         `json:"session_id"`
	// SECURITY: DevVerificationToken is ONLY exposed in development mode.
	// In production the verification token is delivered by email.
	DevVerificationToken *string `json:"dev_verification_token,omitempty"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string        `json:"email" binding:"required"`
	Password string        `json:"password" binding:"required"`
	Device   DevicePayload `json:"device"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	Account     AccountSummary `json:"account"`
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"`
	SessionID   string         `json:"session_id"`
}

// RefreshRequest represents the payload to refresh an access token.
type RefreshRequest struct {
	Token  string        `json:"token" binding:"required"`
	Device DevicePayload `json:"device"`
}

// TrialStartRequest defines the anonymous trial provisioning payload.
type TrialStartRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
}

// TrialStatusResponse reports the trial bound to a device fingerprint.
type TrialStatusResponse struct {
	AccountID         string     `json:"account_id"`
	MessagesRemaining int        `json:"messages_remaining"`
	TrialStartedAt    *time.Time `json:"trial_started_at,omitempty"`
}

// EntitlementResponse is the caller-facing view of a messaging entitlement.
type EntitlementResponse struct {
	AccountType       domain.AccountType `json:"account_type"`
	Unlimited         bool               `json:"unlimited"`
	MessagesRemaining int                `json:"messages_remaining"`
	CanSend           bool               `json:"can_send"`
	PremiumExpiresAt  *time.Time         `json:"premium_expires_at,omitempty"`
}

// NewEntitlementResponse maps a snapshot into its API representation.
func NewEntitlementResponse(snapshot domain.EntitlementSnapshot) EntitlementResponse {
	return EntitlementResponse{
		AccountType:       snapshot.AccountType,
		Unlimited:         snapshot.Unlimited,
		MessagesRemaining: snapshot.MessagesRemaining,
		CanSend:           snapshot.CanSend,
		PremiumExpiresAt:  snapshot.PremiumExpiresAt,
	}
}

// UsageRequest reports the size of one model exchange for cost tracking.
type UsageRequest struct {
	InputChars  int `json:"input_chars" binding:"min=0"`
	OutputChars int `json:"output_chars" binding:"min=0"`
}

// UsageResponse echoes the cost recorded for the exchange.
type UsageResponse struct {
	CostUSD float64 `json:"cost_usd"`
}

// SessionSummary provides a compact view of one login session.
type SessionSummary struct {
	ID         string     `json:"id"`
	DeviceID   *string    `json:"device_id,omitempty"`
	DeviceName *string    `json:"device_name,omitempty"`
	IPAddress  *string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Current    bool       `json:"current"`
	UserAgent  *string    `json:"user_agent,omitempty"`
}

// SessionListResponse wraps the authenticated caller's sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// RevokeAllResponse reports how many sessions a bulk revocation terminated.
type RevokeAllResponse struct {
	Revoked int `json:"revoked"`
}

// PasswordResetRequest asks for a reset token to be issued.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetResponse acknowledges the reset request.
type PasswordResetResponse struct {
	Message string `json:"message"`
	// SECURITY: DevToken is ONLY exposed in development mode.
	DevToken *string `json:"dev_token,omitempty"`
}

// PasswordResetConfirmRequest carries the token and replacement password.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// EmailVerifyRequest carries the email verification token.
type EmailVerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// SubscriptionCreateRequest provisions a plan purchased on the web.
type SubscriptionCreateRequest struct {
	PlanID        string `json:"plan_id" binding:"required"`
	BillingPeriod string `json:"billing_period" binding:"required"`
}

// PlanChangeRequest switches the account onto another plan.
type PlanChangeRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// BillingPeriodChangeRequest switches the billing cycle of the current plan.
type BillingPeriodChangeRequest struct {
	BillingPeriod string `json:"billing_period" binding:"required"`
}

// SubscriptionStatusResponse reports the subscription attached to the account.
type SubscriptionStatusResponse struct {
	AccountType       domain.AccountType         `json:"account_type"`
	Status            *domain.SubscriptionStatus `json:"status,omitempty"`
	BillingPeriod     *domain.BillingPeriod      `json:"billing_period,omitempty"`
	ExpiresAt         *time.Time                 `json:"expires_at,omitempty"`
	NextBillingDate   *time.Time                 `json:"next_billing_date,omitempty"`
	Platform          *domain.Platform           `json:"platform,omitempty"`
	MessagesRemaining *int                       `json:"messages_remaining,omitempty"`
	PriceRSD          int                        `json:"price_rsd,omitempty"`
}

// PurchaseLinkRequest attaches a store receipt to the account.
type PurchaseLinkRequest struct {
	ReceiptToken string `json:"receipt_token" binding:"required"`
	IsRestore    bool   `json:"is_restore"`
}

// ProviderWebhookPayload is the envelope delivered by the billing provider.
// Only the subscriber identifier matters; the event itself triggers a re-sync
// against the provider API.
type ProviderWebhookPayload struct {
	Event ProviderWebhookEvent `json:"event"`
}

// ProviderWebhookEvent identifies the affected subscriber and event type.
type ProviderWebhookEvent struct {
	Type              string `json:"type"`
	AppUserID         string `json:"app_user_id"`
	OriginalAppUserID string `json:"original_app_user_id"`
}
