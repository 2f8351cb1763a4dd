package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/infra/security"
)

// ErrIdentityDenied indicates the request carries no acceptable identity.
var ErrIdentityDenied = errors.New("identity denied")

// IdentityService resolves a bearer token into an authenticated identity.
// Token signatures decide WHO the caller is; the session registry decides
// whether that credential is still welcome. When the registry cannot answer,
// the degradation policy decides whether a verified token is enough.
type IdentityService struct {
	chain     *security.VerifierChain
	localName string
	sessions  *SessionService
	lifecycle *LifecycleService
	policy    domain.DegradationPolicy
	logger    *zap.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(chain *security.VerifierChain, localIssuerName string, sessions *SessionService, policy domain.DegradationPolicy, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{
		chain:     chain,
		localName: localIssuerName,
		sessions:  sessions,
		policy:    policy,
		logger:    logger,
	}
}

// WithLifecycle wires the account lifecycle service so authenticated requests
// can revive soft-deleted accounts still inside the grace window.
func (s *IdentityService) WithLifecycle(lifecycle *LifecycleService) *IdentityService {
	s.lifecycle = lifecycle
	return s
}

// Resolve verifies the bearer token and reconciles it with the session
// registry. Externally issued tokens have no local session and pass on
// signature alone.
func (s *IdentityService) Resolve(ctx context.Context, rawToken string) (domain.AuthResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.DeniedResult(), ErrIdentityDenied
	}

	claims, verifierName, err := s.chain.Verify(rawToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return domain.DeniedResult(), fmt.Errorf("%w: token expired", ErrIdentityDenied)
		}
		return domain.DeniedResult(), fmt.Errorf("%w: %v", ErrIdentityDenied, err)
	}

	result := domain.AuthResult{
		Outcome:   domain.AuthOutcomeAuthenticated,
		AccountID: claims.Subject,
		Email:     claims.Email,
		Issuer:    verifierName,
	}

	if s.lifecycle != nil {
		if _, err := s.lifecycle.EnsureAccessible(ctx, claims.Subject); err != nil {
			if errors.Is(err, ErrAccountDeleted) {
				return domain.DeniedResult(), fmt.Errorf("%w: account deleted", ErrIdentityDenied)
			}
			// Account store trouble is treated like session store trouble below.
			s.logger.Warn("account accessibility check failed",
				zap.String("account_id", claims.Subject),
				zap.Error(err),
			)
		}
	}

	// Tokens from the external identity provider are not tracked in the
	// session registry.
	if verifierName != s.localName {
		return result, nil
	}

	sessionID, err := s.sessions.ValidateToken(ctx, rawToken)
	if err == nil {
		result.SessionID = &sessionID
		return result, nil
	}

	if errors.Is(err, ErrSessionNotFound) {
		// The registry does not know this token. That happens when another
		// instance refreshed the token but the rewrite raced the request, so
		// one rewrite attempt is made before giving up on the session.
		rewrittenID, rewriteErr := s.sessions.RotateToken(ctx, claims.Subject, rawToken, domain.DeviceInfo{})
		if rewriteErr == nil {
			result.SessionID = &rewrittenID
			return result, nil
		}
		if errors.Is(rewriteErr, ErrSessionNotFound) {
			return domain.DeniedResult(), fmt.Errorf("%w: no live session", ErrIdentityDenied)
		}
		return s.degrade(result, domain.DegradationReasonSessionRewriteFailure, rewriteErr)
	}

	return s.degrade(result, domain.DegradationReasonSessionLookupFailure, err)
}

func (s *IdentityService) degrade(result domain.AuthResult, reason domain.DegradationReason, cause error) (domain.AuthResult, error) {
	if !s.policy.AllowsFallback(reason) {
		s.logger.Error("session state unavailable, rejecting per policy",
			zap.String("account_id", result.AccountID),
			zap.String("reason", string(reason)),
			zap.Error(cause),
		)
		return domain.DeniedResult(), fmt.Errorf("%w: session state unavailable", ErrIdentityDenied)
	}

	s.logger.Warn("session state unavailable, allowing verified token through",
		zap.String("account_id", result.AccountID),
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)

	result.Outcome = domain.AuthOutcomeDegraded
	result.DegradedReason = reason
	return result, nil
}
