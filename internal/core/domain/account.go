package domain

import (
	"fmt"
	"strings"
	"time"
)

// AccountType enumerates subscription tiers an account can hold.
type AccountType string

const (
	AccountTypeTrialUnregistered AccountType = "trial_unregistered"
	AccountTypeTrialRegistered   AccountType = "trial_registered"
	AccountTypeIndividual        AccountType = "individual"
	AccountTypeProfessional      AccountType = "professional"
	AccountTypeTeam              AccountType = "team"
	// AccountTypePremium is a legacy tier kept for accounts created before the
	// professional plan replaced it. New subscriptions never produce it.
	AccountTypePremium AccountType = "premium"
)

// ParseAccountType normalises textual input into a supported account type.
func ParseAccountType(value string) (AccountType, error) {
	switch AccountType(strings.ToLower(strings.TrimSpace(value))) {
	case AccountTypeTrialUnregistered:
		return AccountTypeTrialUnregistered, nil
	case AccountTypeTrialRegistered:
		return AccountTypeTrialRegistered, nil
	case AccountTypeIndividual:
		return AccountTypeIndividual, nil
	case AccountTypeProfessional:
		return AccountTypeProfessional, nil
	case AccountTypeTeam:
		return AccountTypeTeam, nil
	case AccountTypePremium:
		return AccountTypePremium, nil
	default:
		return "", fmt.Errorf("unknown account type %q", value)
	}
}

// Unlimited reports whether the tier carries an unmetered message allowance.
func (t AccountType) Unlimited() bool {
	switch t {
	case AccountTypeProfessional, AccountTypeTeam, AccountTypePremium:
		return true
	default:
		return false
	}
}

// Trial reports whether the tier is one of the trial variants.
func (t AccountType) Trial() bool {
	return t == AccountTypeTrialUnregistered || t == AccountTypeTrialRegistered
}

// AccountStatus enumerates lifecycle states for an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDeleted   AccountStatus = "deleted"
)

// SubscriptionStatus enumerates billing states tracked alongside the account.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                     string
	Email                  string
	PasswordHash           *string
	Type                   AccountType
	Status                 AccountStatus
	TrialMessagesRemaining *int
	DeviceFingerprint      *string
	TeamID                 *string
	PremiumExpiresAt       *time.Time
	BillingPeriod          *BillingPeriod
	SubscriptionStatus     *SubscriptionStatus
	SubscriptionStartedAt  *time.Time
	NextBillingDate        *time.Time
	Platform               *Platform
	MonthlyLLMCostUSD      float64
	CurrentCostMonth       *string
	TrialStartedAt         *time.Time
	EmailVerifiedAt        *time.Time
	CreatedAt              time.Time
	UpdatedAt              *time.Time
	LastLogin              *time.Time
	DeletedAt              *time.Time
}

// MessagesRemaining returns the metered counter, treating NULL as zero.
func (a Account) MessagesRemaining() int {
	if a.TrialMessagesRemaining == nil {
		return 0
	}
	return *a.TrialMessagesRemaining
}

// SubscriptionExpired reports whether a paid tier has lapsed at the supplied moment.
func (a Account) SubscriptionExpired(at time.Time) bool {
	return a.PremiumExpiresAt != nil && a.PremiumExpiresAt.Before(at)
}

// CanSendMessage evaluates the entitlement rule chain at the supplied moment.
// Expired paid tiers fall back to the metered counter; unlimited tiers are
// always allowed; everything else requires a positive counter.
func (a Account) CanSendMessage(at time.Time) bool {
	if a.SubscriptionExpired(at) {
		return a.MessagesRemaining() > 0
	}
	if a.Type.Unlimited() {
		return true
	}
	return a.MessagesRemaining() > 0
}

// WithinGracePeriod reports whether a soft-deleted account can still be restored.
func (a Account) WithinGracePeriod(at time.Time, grace time.Duration) bool {
	if a.Status != AccountStatusDeleted || a.DeletedAt == nil {
		return false
	}
	return at.Before(a.DeletedAt.Add(grace))
}
