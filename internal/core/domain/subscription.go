package domain

import (
	"fmt"
	"strings"
	"time"
)

// BillingPeriod enumerates supported subscription cycles.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// ParseBillingPeriod normalises textual input into a supported billing period.
func ParseBillingPeriod(value string) (BillingPeriod, error) {
	switch BillingPeriod(strings.ToLower(strings.TrimSpace(value))) {
	case BillingPeriodMonthly:
		return BillingPeriodMonthly, nil
	case BillingPeriodYearly:
		return BillingPeriodYearly, nil
	default:
		return "", fmt.Errorf("unknown billing period %q", value)
	}
}

// Duration returns the wall-clock length of one billing cycle.
func (p BillingPeriod) Duration() time.Duration {
	if p == BillingPeriodYearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// Platform identifies the store a subscription was purchased through.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// PlatformFromStore maps billing-provider store identifiers to platforms.
func PlatformFromStore(store string) (Platform, bool) {
	switch store {
	case "app_store":
		return PlatformIOS, true
	case "play_store":
		return PlatformAndroid, true
	case "stripe":
		return PlatformWeb, true
	default:
		return "", false
	}
}

// PlanPriceRSD returns the catalogue price in Serbian dinars for a plan and
// billing period. The legacy premium plan is charged at professional rates.
func PlanPriceRSD(plan AccountType, period BillingPeriod) int {
	switch plan {
	case AccountTypeIndividual:
		if period == BillingPeriodYearly {
			return 34000
		}
		return 3400
	case AccountTypeTeam:
		if period == BillingPeriodYearly {
			return 249000
		}
		return 24900
	default:
		if period == BillingPeriodYearly {
			return 64000
		}
		return 6400
	}
}

// NormalizePlan resolves a requested plan identifier to the tier actually
// provisioned. Premium migrates to professional; unknown plans default to
// professional as well.
func NormalizePlan(planID string) AccountType {
	switch strings.ToLower(strings.TrimSpace(planID)) {
	case "individual":
		return AccountTypeIndividual
	case "team":
		return AccountTypeTeam
	default:
		return AccountTypeProfessional
	}
}

// ProductPlanInfo resolves a store product identifier to plan and billing period.
func ProductPlanInfo(productID string) (AccountType, BillingPeriod, bool) {
	switch productID {
	case "com.nikola.normaai.individual.monthly":
		return AccountTypeIndividual, BillingPeriodMonthly, true
	case "com.nikola.normaai.individual.yearly":
		return AccountTypeIndividual, BillingPeriodYearly, true
	case "com.nikola.normaai.professional.monthly":
		return AccountTypeProfessional, BillingPeriodMonthly, true
	case "com.nikola.normaai.professional.yearly":
		return AccountTypeProfessional, BillingPeriodYearly, true
	case "com.nikola.normaai.team.monthly":
		return AccountTypeTeam, BillingPeriodMonthly, true
	case "com.nikola.normaai.team.yearly":
		return AccountTypeTeam, BillingPeriodYearly, true
	default:
		return "", "", false
	}
}

// SubscriberState captures the reconciled view of a subscriber reported by the
// billing provider.
type SubscriberState struct {
	AccountType   AccountType
	BillingPeriod *BillingPeriod
	ExpiresAt     *time.Time
	IsActive      bool
	Platform      *Platform
	InGracePeriod bool
}

// EffectiveStatus derives the subscription status persisted on the account.
// Grace-period subscribers stay active so billing hiccups never cut access.
func (s SubscriberState) EffectiveStatus() SubscriptionStatus {
	switch {
	case s.InGracePeriod, s.IsActive:
		return SubscriptionStatusActive
	case s.ExpiresAt != nil:
		return SubscriptionStatusExpired
	default:
		return SubscriptionStatusCancelled
	}
}

// MessageAllowanceFor returns the metered counter the reconciled tier grants.
// A nil result means the tier is unmetered.
func MessageAllowanceFor(tier AccountType) *int {
	switch tier {
	case AccountTypeIndividual:
		n := 20
		return &n
	case AccountTypeProfessional, AccountTypeTeam, AccountTypePremium:
		return nil
	default:
		n := 5
		return &n
	}
}
