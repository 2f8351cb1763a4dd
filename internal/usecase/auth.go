package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/infra/logger"
	"github.com/nklact/normaai/internal/infra/security"
	"github.com/nklact/normaai/internal/repository"
)

const (
	emailVerificationTTL   = 24 * time.Hour
	registeredTrialCredits = 5
)

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates email or password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
)

// AuthService handles registration, login, and token refresh.
type AuthService struct {
	accounts    port.AccountRepository
	sessions    *SessionService
	tokens      port.TokenRepository
	lifecycle   *LifecycleService
	hasher      *security.PasswordHasher
	validator   *security.PasswordValidator
	issuer      *security.HS256Issuer
	events      port.EventPublisher
	entitlement *EntitlementService
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	accounts port.AccountRepository,
	sessions *SessionService,
	tokens port.TokenRepository,
	hasher *security.PasswordHasher,
	validator *security.PasswordValidator,
	issuer *security.HS256Issuer,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	service := &AuthService{
		accounts:  accounts,
		sessions:  sessions,
		tokens:    tokens,
		hasher:    hasher,
		validator: validator,
		issuer:    issuer,
		events:    events,
		logger:    log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithLifecycle wires the lifecycle service used to revive soft-deleted
// accounts that log in inside the grace window.
func (s *AuthService) WithLifecycle(lifecycle *LifecycleService) *AuthService {
	s.lifecycle = lifecycle
	return s
}

// WithEntitlement wires the entitlement service for cache invalidation after
// trial inheritance.
func (s *AuthService) WithEntitlement(entitlement *EntitlementService) *AuthService {
	s.entitlement = entitlement
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// AuthSession is the result of a successful authentication flow.
type AuthSession struct {
	Account   domain.Account
	Token     string
	ExpiresAt time.Time
	SessionID string
}

// RegistrationResult pairs the authenticated session with the email
// verification token the caller must deliver to the user.
type RegistrationResult struct {
	AuthSession
	VerificationToken     string
	VerificationExpiresAt time.Time
}

// Register creates a registered trial account. When the device already holds
// an anonymous trial, the remaining allowance carries over so registering
// never feels like a penalty.
func (s *AuthService) Register(ctx context.Context, email, password string, fingerprint *string, device domain.DeviceInfo, ip, userAgent *string) (*RegistrationResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("valid email is required")
	}
	if err := s.validator.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup account by email: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	credits := registeredTrialCredits
	trialMerged := false
	var mergedFingerprint *string
	if fingerprint != nil && strings.TrimSpace(*fingerprint) != "" {
		normalized := strings.ToLower(strings.TrimSpace(*fingerprint))
		trial, err := s.accounts.GetTrialByFingerprint(ctx, normalized)
		if err == nil {
			credits = trial.MessagesRemaining()
			trialMerged = true
			mergedFingerprint = &normalized
		} else if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("trial inheritance lookup failed",
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err),
			)
		}
	}

	account := domain.Account{
		Email:                  email,
		PasswordHash:           &passwordHash,
		Type:                   domain.AccountTypeTrialRegistered,
		Status:                 domain.AccountStatusActive,
		TrialMessagesRemaining: &credits,
		DeviceFingerprint:      mergedFingerprint,
		TrialStartedAt:         &now,
	}

	id, err := s.accounts.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	account.ID = id
	account.CreatedAt = now

	authSession, err := s.startSession(ctx, account, device, ip, userAgent)
	if err != nil {
		return nil, err
	}

	rawVerification, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}
	verification := domain.AuthenticationToken{
		AccountID: id,
		TokenHash: security.HashToken(rawVerification),
		Purpose:   domain.TokenPurposeEmailVerification,
		CreatedAt: now,
		ExpiresAt: now.Add(emailVerificationTTL),
	}
	if err := s.tokens.Insert(ctx, verification); err != nil {
		return nil, fmt.Errorf("store verification token: %w", err)
	}

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			EventID:            uuid.NewString(),
			AccountID:          id,
			Email:              logger.MaskEmail(email),
			AccountType:        string(account.Type),
			RegisteredAt:       now,
			TrialMerged:        trialMerged,
			MessagesInherited:  credits,
			RegistrationMethod: "password",
		}
		if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
			s.logger.Warn("publish account registered event failed",
				zap.String("account_id", id),
				zap.Error(err),
			)
		}
	}

	return &RegistrationResult{
		AuthSession:           *authSession,
		VerificationToken:     rawVerification,
		VerificationExpiresAt: verification.ExpiresAt,
	}, nil
}

// Login authenticates by email and password. Soft-deleted accounts inside the
// grace window are revived by the attempt.
func (s *AuthService) Login(ctx context.Context, email, password string, device domain.DeviceInfo, ip, userAgent *string) (*AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account by email: %w", err)
	}

	if account.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	match, err := s.hasher.Verify(password, *account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	if account.Status == domain.AccountStatusDeleted {
		if s.lifecycle == nil {
			return nil, ErrAccountDeleted
		}
		restored, err := s.lifecycle.EnsureAccessible(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		account = restored
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.ID, s.now()); err != nil {
		s.logger.Warn("update last login failed",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}

	return s.startSession(ctx, *account, device, ip, userAgent)
}

// Refresh exchanges a valid or recently expired token for a fresh one. The
// backing session is rewritten in place, so the device keeps its slot under
// the session cap.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, device domain.DeviceInfo) (*AuthSession, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvalidCredentials
	}

	claims, err := s.issuer.VerifyAllowExpired(rawToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.Status != domain.AccountStatusActive {
		return nil, ErrAccountDeleted
	}

	token, expiresAt, err := s.issuer.Issue(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	sessionID, err := s.sessions.RotateToken(ctx, account.ID, token, device)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// No session survived for this account; fall back to establishing
			// a fresh one so the refresh still succeeds.
			sessionID, err = s.sessions.EstablishSession(ctx, account.ID, token, device, nil, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("rotate session: %w", err)
		}
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.ID, s.now()); err != nil {
		s.logger.Warn("update last login failed",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}

	return &AuthSession{
		Account:   *account,
		Token:     token,
		ExpiresAt: expiresAt,
		SessionID: sessionID,
	}, nil
}

// Logout revokes the session behind the supplied token.
func (s *AuthService) Logout(ctx context.Context, accountID, rawToken string) error {
	return s.sessions.RevokeByToken(ctx, accountID, rawToken)
}

func (s *AuthService) startSession(ctx context.Context, account domain.Account, device domain.DeviceInfo, ip, userAgent *string) (*AuthSession, error) {
	token, expiresAt, err := s.issuer.Issue(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	sessionID, err := s.sessions.EstablishSession(ctx, account.ID, token, device, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("establish session: %w", err)
	}

	return &AuthSession{
		Account:   account,
		Token:     token,
		ExpiresAt: expiresAt,
		SessionID: sessionID,
	}, nil
}
