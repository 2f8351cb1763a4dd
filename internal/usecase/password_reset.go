package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/infra/logger"
	"github.com/nklact/normaai/internal/infra/security"
	"github.com/nklact/normaai/internal/repository"
)

const passwordResetTTL = time.Hour

var (
	// ErrTokenInvalidOrUsed indicates the single-use token is unknown, expired, or spent.
	ErrTokenInvalidOrUsed = errors.New("token invalid or already used")
)

// PasswordResetService handles forgotten-password and email-verification flows.
type PasswordResetService struct {
	accounts  port.AccountRepository
	tokens    port.TokenRepository
	sessions  *SessionService
	hasher    *security.PasswordHasher
	validator *security.PasswordValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(accounts port.AccountRepository, tokens port.TokenRepository, sessions *SessionService, hasher *security.PasswordHasher, validator *security.PasswordValidator, log *zap.Logger) *PasswordResetService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	service := &PasswordResetService{
		accounts:  accounts,
		tokens:    tokens,
		sessions:  sessions,
		hasher:    hasher,
		validator: validator,
		logger:    log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ResetRequest carries the token the caller must deliver out of band. Token is
// empty when the email is unknown; the endpoint answers identically either way
// so the flow cannot be used to probe which emails are registered.
type ResetRequest struct {
	Token     string
	ExpiresAt time.Time
}

// RequestReset issues a password reset token for the account behind the email.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (*ResetRequest, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return &ResetRequest{}, nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email",
				zap.String("email", logger.MaskEmail(email)),
			)
			return &ResetRequest{}, nil
		}
		return nil, fmt.Errorf("lookup account by email: %w", err)
	}

	raw, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	token := domain.AuthenticationToken{
		AccountID: account.ID,
		TokenHash: security.HashToken(raw),
		Purpose:   domain.TokenPurposePasswordReset,
		CreatedAt: now,
		ExpiresAt: now.Add(passwordResetTTL),
	}
	if err := s.tokens.Insert(ctx, token); err != nil {
		return nil, fmt.Errorf("store reset token: %w", err)
	}

	return &ResetRequest{Token: raw, ExpiresAt: token.ExpiresAt}, nil
}

// ResetPassword consumes the token and replaces the password. Every session is
// revoked; whoever triggered the reset must sign in again on each device.
func (s *PasswordResetService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if strings.TrimSpace(rawToken) == "" {
		return ErrTokenInvalidOrUsed
	}
	if err := s.validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	token, err := s.tokens.Consume(ctx, security.HashToken(rawToken), domain.TokenPurposePasswordReset, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalidOrUsed
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.accounts.UpdatePassword(ctx, token.AccountID, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if _, err := s.sessions.RevokeAllSessions(ctx, token.AccountID, nil); err != nil {
		s.logger.Warn("revoke sessions after password reset failed",
			zap.String("account_id", token.AccountID),
			zap.Error(err),
		)
	}

	return nil
}

// VerifyEmail consumes an email verification token.
func (s *PasswordResetService) VerifyEmail(ctx context.Context, rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return ErrTokenInvalidOrUsed
	}

	now := s.now()
	token, err := s.tokens.Consume(ctx, security.HashToken(rawToken), domain.TokenPurposeEmailVerification, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalidOrUsed
		}
		return fmt.Errorf("consume verification token: %w", err)
	}

	if err := s.accounts.MarkEmailVerified(ctx, token.AccountID, now); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// CleanupExpiredTokens removes spent and expired single-use tokens.
func (s *PasswordResetService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	removed, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired tokens: %w", err)
	}
	return removed, nil
}
