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
	"github.com/nklact/normaai/internal/repository"
)

const (
	individualMonthlyAllowance = 20
	allowanceResetInterval     = 30 * 24 * time.Hour

	// LLM usage is billed per token; a token averages four characters.
	charsPerToken        = 4
	inputCostPerMillion  = 1.25
	outputCostPerMillion = 10.0
)

var (
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrMessageLimitReached indicates the metered allowance is exhausted.
	ErrMessageLimitReached = errors.New("message limit reached")
)

// EntitlementService answers whether an account may send a message and keeps
// the metered counters honest under concurrency.
type EntitlementService struct {
	accounts port.AccountRepository
	cache    port.EntitlementCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewEntitlementService constructs an EntitlementService.
func NewEntitlementService(accounts port.AccountRepository, logger *zap.Logger) *EntitlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &EntitlementService{
		accounts: accounts,
		logger:   logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithCache wires a snapshot cache. Lookups stay correct without it, only slower.
func (s *EntitlementService) WithCache(cache port.EntitlementCache, ttl time.Duration) *EntitlementService {
	if cache != nil {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
		if s.cacheTTL <= 0 {
			s.cacheTTL = 30 * time.Second
		}
	}
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *EntitlementService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CheckEntitlement reports the account's current messaging entitlement.
func (s *EntitlementService) CheckEntitlement(ctx context.Context, accountID string) (*domain.EntitlementSnapshot, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account id is required")
	}

	if s.cache != nil {
		snapshot, err := s.cache.Get(ctx, accountID)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("entitlement cache lookup failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}

	if err := s.refreshAllowance(ctx, accountID); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	snapshot := domain.SnapshotEntitlement(*account, s.now())

	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("entitlement cache store failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}

	return &snapshot, nil
}

// ConsumeMessage spends one metered message. The decrement happens in a single
// guarded statement, so two concurrent sends cannot both spend the last
// message. Unmetered tiers pass through without touching the counter.
func (s *EntitlementService) ConsumeMessage(ctx context.Context, accountID string) (*domain.EntitlementSnapshot, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account id is required")
	}

	if err := s.refreshAllowance(ctx, accountID); err != nil {
		return nil, err
	}

	decremented, err := s.accounts.DecrementMessages(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("decrement messages: %w", err)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	now := s.now()
	if !decremented {
		// No row qualified: either the tier is unmetered, which is fine, or
		// the metered counter is exhausted.
		if !account.Type.Unlimited() || account.SubscriptionExpired(now) {
			return nil, ErrMessageLimitReached
		}
	}

	s.invalidateCache(ctx, accountID)

	snapshot := domain.SnapshotEntitlement(*account, now)
	return &snapshot, nil
}

// EstimateCostUSD prices one exchange with the model.
func (s *EntitlementService) EstimateCostUSD(inputChars, outputChars int) float64 {
	inputTokens := float64(inputChars) / charsPerToken
	outputTokens := float64(outputChars) / charsPerToken
	return inputTokens/1_000_000*inputCostPerMillion + outputTokens/1_000_000*outputCostPerMillion
}

// TrackUsage accumulates the cost of one exchange on the account's monthly
// ledger. The month key rolls the accumulator over in the statement itself.
func (s *EntitlementService) TrackUsage(ctx context.Context, accountID string, inputChars, outputChars int) error {
	if strings.TrimSpace(accountID) == "" {
		return fmt.Errorf("account id is required")
	}

	cost := s.EstimateCostUSD(inputChars, outputChars)
	month := s.now().Format("2006-01")

	if err := s.accounts.AddMonthlyCost(ctx, accountID, month, cost); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("track usage cost: %w", err)
	}
	return nil
}

// ResetMonthlyAllowances tops up individual subscribers whose rolling billing
// cycle has elapsed. Safe to run on every maintenance tick; the predicate only
// matches accounts that are genuinely due.
func (s *EntitlementService) ResetMonthlyAllowances(ctx context.Context) (int64, error) {
	reset, err := s.accounts.ResetIndividualAllowances(ctx, allowanceResetInterval, individualMonthlyAllowance)
	if err != nil {
		return 0, fmt.Errorf("reset monthly allowances: %w", err)
	}
	return reset, nil
}

// refreshAllowance applies the rolling monthly top-up ahead of any rule
// evaluation. Evaluating first would deny an individual subscriber whose
// cycle elapsed since the last sweep.
func (s *EntitlementService) refreshAllowance(ctx context.Context, accountID string) error {
	reset, err := s.accounts.ResetIndividualAllowance(ctx, accountID, allowanceResetInterval, individualMonthlyAllowance)
	if err != nil {
		return fmt.Errorf("refresh allowance: %w", err)
	}
	if reset {
		s.invalidateCache(ctx, accountID)
	}
	return nil
}

// InvalidateEntitlement drops the cached snapshot after a state change.
func (s *EntitlementService) InvalidateEntitlement(ctx context.Context, accountID string) {
	s.invalidateCache(ctx, accountID)
}

func (s *EntitlementService) invalidateCache(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, accountID); err != nil {
		s.logger.Warn("entitlement cache invalidation failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}
