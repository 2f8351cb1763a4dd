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

// ErrNoActiveSubscription indicates the account has nothing to cancel or change.
var ErrNoActiveSubscription = errors.New("no active subscription")

// SubscriptionService provisions plans and reconciles account state with the
// billing provider.
type SubscriptionService struct {
	accounts    port.AccountRepository
	gateway     port.SubscriberGateway
	entitlement *EntitlementService
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(accounts port.AccountRepository, gateway port.SubscriberGateway, events port.EventPublisher, log *zap.Logger) *SubscriptionService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &SubscriptionService{
		accounts: accounts,
		gateway:  gateway,
		events:   events,
		logger:   log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithEntitlement wires the entitlement service for cache invalidation.
func (s *SubscriptionService) WithEntitlement(entitlement *EntitlementService) *SubscriptionService {
	s.entitlement = entitlement
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SubscriptionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// SubscriptionStatus is the caller-facing view of the account's subscription.
type SubscriptionStatus struct {
	AccountType       domain.AccountType
	Status            *domain.SubscriptionStatus
	BillingPeriod     *domain.BillingPeriod
	ExpiresAt         *time.Time
	NextBillingDate   *time.Time
	Platform          *domain.Platform
	MessagesRemaining *int
	PriceRSD          int
}

// CreateSubscription provisions a plan directly, for purchases completed on
// the web where no store receipt exists. Team plans mint a fresh team id.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, accountID, planID, billingPeriod string) (*domain.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account id is required")
	}
	period, err := domain.ParseBillingPeriod(billingPeriod)
	if err != nil {
		return nil, err
	}
	plan := domain.NormalizePlan(planID)

	now := s.now()
	change := port.SubscriptionChange{
		AccountID:       accountID,
		Plan:            plan,
		BillingPeriod:   period,
		StartedAt:       now,
		ExpiresAt:       now.Add(period.Duration()),
		NextBillingDate: now.Add(period.Duration()),
	}
	if plan == domain.AccountTypeTeam {
		teamID := uuid.NewString()
		change.TeamID = &teamID
	}

	if err := s.accounts.ApplySubscription(ctx, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("apply subscription: %w", err)
	}

	s.invalidate(ctx, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	s.publishSynced(ctx, *account)
	return account, nil
}

// ChangePlan switches the account to another plan, keeping the billing period.
func (s *SubscriptionService) ChangePlan(ctx context.Context, accountID, planID string) (*domain.Account, error) {
	account, err := s.loadSubscribed(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.CreateSubscription(ctx, accountID, planID, string(*account.BillingPeriod))
}

// ChangeBillingPeriod switches between monthly and yearly billing for the
// current plan.
func (s *SubscriptionService) ChangeBillingPeriod(ctx context.Context, accountID, billingPeriod string) (*domain.Account, error) {
	account, err := s.loadSubscribed(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.CreateSubscription(ctx, accountID, string(account.Type), billingPeriod)
}

// CancelSubscription ends the recurring billing. Paid access survives until
// the date the subscriber already paid for.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, accountID string) (*domain.Account, error) {
	if _, err := s.loadSubscribed(ctx, accountID); err != nil {
		return nil, err
	}

	if err := s.accounts.CancelSubscription(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	s.invalidate(ctx, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	s.publishSynced(ctx, *account)
	return account, nil
}

// Status reports the account's subscription, including the catalogue price of
// its plan.
func (s *SubscriptionService) Status(ctx context.Context, accountID string) (*SubscriptionStatus, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	status := &SubscriptionStatus{
		AccountType:       account.Type,
		Status:            account.SubscriptionStatus,
		BillingPeriod:     account.BillingPeriod,
		ExpiresAt:         account.PremiumExpiresAt,
		NextBillingDate:   account.NextBillingDate,
		Platform:          account.Platform,
		MessagesRemaining: account.TrialMessagesRemaining,
	}
	if account.BillingPeriod != nil {
		status.PriceRSD = domain.PlanPriceRSD(account.Type, *account.BillingPeriod)
	}
	return status, nil
}

// LinkPurchase attaches a store receipt to the account at the billing provider
// and immediately reconciles the resulting state.
func (s *SubscriptionService) LinkPurchase(ctx context.Context, accountID, receiptToken string, isRestore bool) (*domain.Account, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("billing gateway not configured")
	}
	if err := s.gateway.LinkPurchase(ctx, accountID, receiptToken, isRestore); err != nil {
		return nil, fmt.Errorf("link purchase: %w", err)
	}
	return s.SyncFromProvider(ctx, accountID)
}

// SyncFromProvider pulls the subscriber state from the billing provider and
// overwrites the account's subscription fields with it. The provider's answer
// always wins; a lapsed subscriber drops to a registered trial with nothing
// left to spend.
func (s *SubscriptionService) SyncFromProvider(ctx context.Context, accountID string) (*domain.Account, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("billing gateway not configured")
	}

	state, err := s.gateway.FetchSubscriberState(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscriber state: %w", err)
	}

	sync := port.BillingSync{
		AccountID:        accountID,
		AccountType:      state.AccountType,
		BillingPeriod:    state.BillingPeriod,
		Status:           state.EffectiveStatus(),
		PremiumExpiresAt: state.ExpiresAt,
		NextBillingDate:  state.ExpiresAt,
		Platform:         state.Platform,
		SubscriberID:     accountID,
	}

	if state.IsActive || state.InGracePeriod {
		sync.Messages = domain.MessageAllowanceFor(state.AccountType)
	} else {
		zero := 0
		sync.AccountType = domain.AccountTypeTrialRegistered
		sync.Messages = &zero
	}

	if err := s.accounts.ApplyBillingSync(ctx, sync); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("apply billing sync: %w", err)
	}

	s.invalidate(ctx, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	if s.events != nil {
		var platform *string
		if state.Platform != nil {
			p := string(*state.Platform)
			platform = &p
		}
		event := domain.SubscriptionSyncedEvent{
			EventID:       uuid.NewString(),
			AccountID:     accountID,
			AccountType:   string(sync.AccountType),
			Status:        string(sync.Status),
			ExpiresAt:     state.ExpiresAt,
			Platform:      platform,
			InGracePeriod: state.InGracePeriod,
			SyncedAt:      s.now(),
		}
		if err := s.events.PublishSubscriptionSynced(ctx, event); err != nil {
			s.logger.Warn("publish subscription synced event failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}

	return account, nil
}

// HandleProviderEvent reacts to a webhook delivery by re-syncing the affected
// subscriber. The event payload itself is advisory; the provider API is the
// source of truth.
func (s *SubscriptionService) HandleProviderEvent(ctx context.Context, appUserID string) error {
	if strings.TrimSpace(appUserID) == "" {
		return fmt.Errorf("app user id is required")
	}
	if _, err := s.SyncFromProvider(ctx, appUserID); err != nil {
		return err
	}
	return nil
}

func (s *SubscriptionService) loadSubscribed(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.BillingPeriod == nil || account.SubscriptionStatus == nil ||
		*account.SubscriptionStatus != domain.SubscriptionStatusActive {
		return nil, ErrNoActiveSubscription
	}
	return account, nil
}

func (s *SubscriptionService) invalidate(ctx context.Context, accountID string) {
	if s.entitlement != nil {
		s.entitlement.InvalidateEntitlement(ctx, accountID)
	}
}

func (s *SubscriptionService) publishSynced(ctx context.Context, account domain.Account) {
	if s.events == nil {
		return
	}

	status := ""
	if account.SubscriptionStatus != nil {
		status = string(*account.SubscriptionStatus)
	}
	var platform *string
	if account.Platform != nil {
		p := string(*account.Platform)
		platform = &p
	}

	event := domain.SubscriptionSyncedEvent{
		EventID:     uuid.NewString(),
		AccountID:   account.ID,
		AccountType: string(account.Type),
		Status:      status,
		ExpiresAt:   account.PremiumExpiresAt,
		Platform:    platform,
		SyncedAt:    s.now(),
	}
	if err := s.events.PublishSubscriptionSynced(ctx, event); err != nil {
		s.logger.Warn("publish subscription synced event failed",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}
}
