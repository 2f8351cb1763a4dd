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
	"github.com/nklact/normaai/internal/repository"
)

const defaultAccountGrace = 30 * 24 * time.Hour

var (
	// ErrAccountDeleted indicates the account is deleted and past recovery.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrTeamHasMembers indicates a team owner cannot be deleted while other
	// members remain active.
	ErrTeamHasMembers = errors.New("team still has active members")
)

// LifecycleService drives soft deletion, restoration, and permanent purging of
// accounts.
type LifecycleService struct {
	accounts    port.AccountRepository
	sessions    *SessionService
	entitlement *EntitlementService
	events      port.EventPublisher
	logger      *zap.Logger
	grace       time.Duration
	now         func() time.Time
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(accounts port.AccountRepository, sessions *SessionService, events port.EventPublisher, log *zap.Logger, grace time.Duration) *LifecycleService {
	if log == nil {
		log = zap.NewNop()
	}
	if grace <= 0 {
		grace = defaultAccountGrace
	}
	service := &LifecycleService{
		accounts: accounts,
		sessions: sessions,
		events:   events,
		logger:   log,
		grace:    grace,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithEntitlement wires the entitlement service for cache invalidation.
func (s *LifecycleService) WithEntitlement(entitlement *EntitlementService) *LifecycleService {
	s.entitlement = entitlement
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *LifecycleService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// DeleteAccount soft-deletes the account, cancels any running subscription,
// and revokes every session. The row survives for the grace window.
func (s *LifecycleService) DeleteAccount(ctx context.Context, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return fmt.Errorf("account id is required")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("load account: %w", err)
	}

	// A team owner walking away would strand the whole team's access.
	if account.Type == domain.AccountTypeTeam && account.TeamID != nil {
		others, err := s.accounts.CountOtherActiveTeamMembers(ctx, *account.TeamID, accountID)
		if err != nil {
			return fmt.Errorf("count team members: %w", err)
		}
		if others > 0 {
			return ErrTeamHasMembers
		}
	}

	if account.SubscriptionStatus != nil && *account.SubscriptionStatus == domain.SubscriptionStatusActive {
		if err := s.accounts.CancelSubscription(ctx, accountID); err != nil {
			s.logger.Warn("cancel subscription during deletion failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}

	now := s.now()
	if err := s.accounts.SoftDelete(ctx, accountID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("soft delete account: %w", err)
	}

	revoked, err := s.sessions.RevokeAllSessions(ctx, accountID, nil)
	if err != nil {
		s.logger.Warn("revoke sessions during deletion failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}

	s.invalidate(ctx, accountID)

	if s.events != nil {
		event := domain.AccountDeletedEvent{
			EventID:         uuid.NewString(),
			AccountID:       accountID,
			DeletedAt:       now,
			GracePeriodEnds: now.Add(s.grace),
			SessionsRevoked: revoked,
		}
		if err := s.events.PublishAccountDeleted(ctx, event); err != nil {
			s.logger.Warn("publish account deleted event failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// RestoreAccount revives a soft-deleted account inside the grace window.
func (s *LifecycleService) RestoreAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.restore(ctx, accountID, false)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// EnsureAccessible returns the account if it is usable, reviving it when it
// sits soft-deleted inside the grace window. Past the window the account is
// gone for good.
func (s *LifecycleService) EnsureAccessible(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if account.Status == domain.AccountStatusActive {
		return account, nil
	}

	return s.restore(ctx, accountID, true)
}

func (s *LifecycleService) restore(ctx context.Context, accountID string, auto bool) (*domain.Account, error) {
	account, err := s.accounts.Restore(ctx, accountID, s.grace)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountDeleted
		}
		return nil, fmt.Errorf("restore account: %w", err)
	}

	s.invalidate(ctx, accountID)

	if s.events != nil {
		event := domain.AccountRestoredEvent{
			EventID:     uuid.NewString(),
			AccountID:   accountID,
			RestoredAt:  s.now(),
			AutoRestore: auto,
		}
		if err := s.events.PublishAccountRestored(ctx, event); err != nil {
			s.logger.Warn("publish account restored event failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}

	return account, nil
}

// PurgeExpired permanently removes soft-deleted accounts past the grace window.
func (s *LifecycleService) PurgeExpired(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.accounts.ListExpiredDeleted(ctx, now.Add(-s.grace))
	if err != nil {
		return 0, fmt.Errorf("list purge candidates: %w", err)
	}

	purged := 0
	for _, id := range ids {
		if err := s.accounts.Purge(ctx, id); err != nil {
			s.logger.Warn("purge account failed",
				zap.String("account_id", id),
				zap.Error(err),
			)
			continue
		}
		purged++

		if s.events != nil {
			event := domain.AccountPurgedEvent{
				EventID:   uuid.NewString(),
				AccountID: id,
				PurgedAt:  now,
			}
			if err := s.events.PublishAccountPurged(ctx, event); err != nil {
				s.logger.Warn("publish account purged event failed",
					zap.String("account_id", id),
					zap.Error(err),
				)
			}
		}
	}

	return purged, nil
}

func (s *LifecycleService) invalidate(ctx context.Context, accountID string) {
	if s.entitlement != nil {
		s.entitlement.InvalidateEntitlement(ctx, accountID)
	}
}
