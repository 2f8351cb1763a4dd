package port

import (
	"context"
	"time"

	"github.com/nklact/normaai/internal/core/domain"
)

// SubscriptionChange captures a manual plan provisioning applied to an account.
type SubscriptionChange struct {
	AccountID       string
	Plan            domain.AccountType
	BillingPeriod   domain.BillingPeriod
	StartedAt       time.Time
	ExpiresAt       time.Time
	NextBillingDate time.Time
	TeamID          *string
}

// BillingSync captures the reconciled subscriber state pushed onto an account
// after talking to the billing provider.
type BillingSync struct {
	AccountID        string
	AccountType      domain.AccountType
	BillingPeriod    *domain.BillingPeriod
	Status           domain.SubscriptionStatus
	PremiumExpiresAt *time.Time
	NextBillingDate  *time.Time
	Messages         *int
	Platform         *domain.Platform
	SubscriberID     string
}

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) (string, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetTrialByFingerprint(ctx context.Context, fingerprint string) (*domain.Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error

	// DecrementMessages performs the guarded counter decrement. It reports false
	// when no row qualified, either because the counter is exhausted or because
	// the account holds an unmetered tier.
	DecrementMessages(ctx context.Context, id string) (bool, error)
	// ResetIndividualAllowance applies the rolling monthly top-up to a single
	// account. It reports true when the counter was actually reset.
	ResetIndividualAllowance(ctx context.Context, id string, interval time.Duration, allowance int) (bool, error)
	ResetIndividualAllowances(ctx context.Context, interval time.Duration, allowance int) (int64, error)
	AddMonthlyCost(ctx context.Context, id string, month string, amountUSD float64) error

	ApplySubscription(ctx context.Context, change SubscriptionChange) error
	CancelSubscription(ctx context.Context, id string) error
	ApplyBillingSync(ctx context.Context, sync BillingSync) error

	SoftDelete(ctx context.Context, id string, at time.Time) error
	// Restore revives a soft-deleted account, guarded in SQL so it only succeeds
	// inside the grace window. Returns repository.ErrNotFound past the window.
	Restore(ctx context.Context, id string, grace time.Duration) (*domain.Account, error)
	ListExpiredDeleted(ctx context.Context, cutoff time.Time) ([]string, error)
	Purge(ctx context.Context, id string) error
	CountOtherActiveTeamMembers(ctx context.Context, teamID, excludeID string) (int, error)
}
