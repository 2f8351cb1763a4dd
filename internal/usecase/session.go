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
	"github.com/nklact/normaai/internal/infra/security"
	"github.com/nklact/normaai/internal/repository"
)

const (
	defaultSessionCap = 5
	defaultSessionTTL = 30 * 24 * time.Hour
)

var (
	// ErrSessionNotFound indicates that no live session matches the request.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionForbidden indicates that the session is not owned by the caller.
	ErrSessionForbidden = errors.New("session not owned by account")
)

// SessionService coordinates the per-account session registry: establishing
// sessions on login, validating them per request, rewriting token hashes on
// refresh, and enforcing the concurrent session cap.
type SessionService struct {
	sessions port.SessionRepository
	events   port.EventPublisher
	logger   *zap.Logger
	cap      int
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, events port.EventPublisher, logger *zap.Logger, cap int, ttl time.Duration) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cap <= 0 {
		cap = defaultSessionCap
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	service := &SessionService{
		sessions: sessions,
		events:   events,
		logger:   logger,
		cap:      cap,
		ttl:      ttl,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// EstablishSession records a login under the session cap. An exact token match
// only refreshes activity, a known device gets its session rewritten in place,
// and only a genuinely new device inserts a row, evicting the least recently
// seen session when the account is at capacity.
func (s *SessionService) EstablishSession(ctx context.Context, accountID, rawToken string, device domain.DeviceInfo, ip, userAgent *string) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(rawToken) == "" {
		return "", fmt.Errorf("token is required")
	}

	now := s.now()
	tokenHash := security.HashToken(rawToken)

	existing, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err == nil && existing.IsActive(now) {
		if err := s.sessions.Touch(ctx, existing.ID, ip, now); err != nil {
			return "", fmt.Errorf("touch session: %w", err)
		}
		return existing.ID, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("lookup session by token: %w", err)
	}

	if device.DeviceID != nil && strings.TrimSpace(*device.DeviceID) != "" {
		sessionID, err := s.sessions.RewriteTokenByDevice(ctx, accountID, *device.DeviceID, tokenHash, now.Add(s.ttl), now)
		if err == nil {
			return sessionID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("rewrite session for device: %w", err)
		}
	}

	if _, err := s.sessions.DeleteStaleForAccount(ctx, accountID, now); err != nil {
		s.logger.Warn("stale session cleanup failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}

	count, err := s.sessions.CountActive(ctx, accountID, now)
	if err != nil {
		return "", fmt.Errorf("count active sessions: %w", err)
	}
	if count >= s.cap {
		if err := s.sessions.RevokeOldest(ctx, accountID, now); err != nil {
			s.logger.Warn("session cap eviction failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		} else {
			s.publishRevoked(ctx, domain.SessionRevokedEvent{
				EventID:   uuid.NewString(),
				AccountID: accountID,
				RevokedAt: now,
				Reason:    "session_cap",
			})
		}
	}

	session := domain.Session{
		AccountID:  accountID,
		TokenHash:  tokenHash,
		DeviceID:   device.DeviceID,
		DeviceName: device.Name,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}

	sessionID, err := s.sessions.Insert(ctx, session)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	return sessionID, nil
}

// ValidateToken confirms the raw token maps to a live session and records the
// activity. The check and the last-seen bump are one statement, so concurrent
// validations cannot observe a half-updated session.
func (s *SessionService) ValidateToken(ctx context.Context, rawToken string) (string, error) {
	if strings.TrimSpace(rawToken) == "" {
		return "", ErrSessionNotFound
	}

	sessionID, err := s.sessions.TouchByTokenHash(ctx, security.HashToken(rawToken), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("validate session token: %w", err)
	}
	return sessionID, nil
}

// RotateToken moves an existing session onto a freshly issued token. The
// session row survives, so the device keeps its place under the cap. Sessions
// are matched by device first and by recency when the device is unknown.
func (s *SessionService) RotateToken(ctx context.Context, accountID, newRawToken string, device domain.DeviceInfo) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(newRawToken) == "" {
		return "", fmt.Errorf("token is required")
	}

	now := s.now()
	tokenHash := security.HashToken(newRawToken)
	expiresAt := now.Add(s.ttl)

	if device.DeviceID != nil && strings.TrimSpace(*device.DeviceID) != "" {
		sessionID, err := s.sessions.RewriteTokenByDevice(ctx, accountID, *device.DeviceID, tokenHash, expiresAt, now)
		if err == nil {
			return sessionID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("rotate session token: %w", err)
		}
	}

	sessionID, err := s.sessions.RewriteTokenMostRecent(ctx, accountID, tokenHash, expiresAt, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("rotate session token: %w", err)
	}
	return sessionID, nil
}

// ListSessions returns the caller's live sessions ordered by recency.
func (s *SessionService) ListSessions(ctx context.Context, accountID string) ([]domain.Session, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account id is required")
	}

	sessions, err := s.sessions.ListActiveByAccount(ctx, accountID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession terminates one session owned by the caller.
func (s *SessionService) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	revoked, err := s.sessions.Revoke(ctx, sessionID, accountID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if !revoked {
		return ErrSessionNotFound
	}

	s.publishRevoked(ctx, domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		AccountID: accountID,
		RevokedAt: s.now(),
		Reason:    "manual_revoke",
	})
	return nil
}

// RevokeByToken terminates the session behind the supplied raw token. Used by
// logout, where the caller identifies the session by the credential it holds.
func (s *SessionService) RevokeByToken(ctx context.Context, accountID, rawToken string) error {
	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lookup session by token: %w", err)
	}
	if session.AccountID != accountID {
		return ErrSessionForbidden
	}
	return s.RevokeSession(ctx, accountID, session.ID)
}

// RevokeAllSessions terminates every live session for the account, optionally
// sparing the session behind the supplied raw token.
func (s *SessionService) RevokeAllSessions(ctx context.Context, accountID string, exceptRawToken *string) (int, error) {
	if strings.TrimSpace(accountID) == "" {
		return 0, fmt.Errorf("account id is required")
	}

	var exceptHash *string
	if exceptRawToken != nil && strings.TrimSpace(*exceptRawToken) != "" {
		hash := security.HashToken(*exceptRawToken)
		exceptHash = &hash
	}

	revoked, err := s.sessions.RevokeAllForAccount(ctx, accountID, exceptHash)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	if revoked > 0 {
		s.publishRevoked(ctx, domain.SessionRevokedEvent{
			EventID:   uuid.NewString(),
			AccountID: accountID,
			RevokedAt: s.now(),
			Reason:    "global_signout",
		})
	}
	return revoked, nil
}

// CleanupStale removes expired and long-idle session rows across all accounts.
func (s *SessionService) CleanupStale(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteStale(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup stale sessions: %w", err)
	}
	return removed, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, event domain.SessionRevokedEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked event failed",
			zap.String("account_id", event.AccountID),
			zap.Error(err),
		)
	}
}
