package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nklact/normaai/internal/core/domain"
)

type subscriptionFixture struct {
	svc      *SubscriptionService
	accounts *fakeAccountRepo
	gateway  *fakeGateway
	events   *fakePublisher
}

func newSubscriptionFixture(t *testing.T, at time.Time) *subscriptionFixture {
	t.Helper()
	accounts := newFakeAccountRepo()
	accounts.clock = fixedClock(at)
	gateway := &fakeGateway{}
	events := &fakePublisher{}
	svc := NewSubscriptionService(accounts, gateway, events, nil)
	svc.WithClock(fixedClock(at))
	return &subscriptionFixture{svc: svc, accounts: accounts, gateway: gateway, events: events}
}

func TestCreateSubscriptionProvisionsIndividualPlan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:                  "user@example.com",
		Type:                   domain.AccountTypeTrialRegistered,
		Status:                 domain.AccountStatusActive,
		TrialMessagesRemaining: intPtr(1),
	})

	updated, err := f.svc.CreateSubscription(context.Background(), account.ID, "individual", "monthly")
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if updated.Type != domain.AccountTypeIndividual {
		t.Fatalf("type = %s", updated.Type)
	}
	if updated.MessagesRemaining() != 20 {
		t.Fatalf("messages = %d, want 20", updated.MessagesRemaining())
	}
	if updated.NextBillingDate == nil || !updated.NextBillingDate.Equal(now.Add(30*24*time.Hour)) {
		t.Fatalf("next billing date = %v", updated.NextBillingDate)
	}
	kinds := f.events.kinds()
	if len(kinds) != 1 || kinds[0] != "subscription.synced" {
		t.Fatalf("unexpected events %v", kinds)
	}
}

func TestCreateSubscriptionTeamPlanMintsTeam(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "owner@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})

	updated, err := f.svc.CreateSubscription(context.Background(), account.ID, "team", "yearly")
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if updated.TeamID == nil || *updated.TeamID == "" {
		t.Fatalf("team plan must mint a team id")
	}
	if updated.TrialMessagesRemaining != nil {
		t.Fatalf("team tier must be unmetered")
	}
}

func TestCreateSubscriptionUnknownPlanDefaultsToProfessional(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})

	updated, err := f.svc.CreateSubscription(context.Background(), account.ID, "premium", "monthly")
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if updated.Type != domain.AccountTypeProfessional {
		t.Fatalf("type = %s, want professional", updated.Type)
	}
}

func TestChangePlanRequiresActiveSubscription(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})

	if _, err := f.svc.ChangePlan(context.Background(), account.ID, "team"); !errors.Is(err, ErrNoActiveSubscription) {
		t.Fatalf("expected ErrNoActiveSubscription, got %v", err)
	}
}

func TestChangeBillingPeriodKeepsPlan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})
	if _, err := f.svc.CreateSubscription(context.Background(), account.ID, "individual", "monthly"); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	updated, err := f.svc.ChangeBillingPeriod(context.Background(), account.ID, "yearly")
	if err != nil {
		t.Fatalf("ChangeBillingPeriod: %v", err)
	}
	if updated.Type != domain.AccountTypeIndividual {
		t.Fatalf("plan changed to %s", updated.Type)
	}
	if updated.BillingPeriod == nil || *updated.BillingPeriod != domain.BillingPeriodYearly {
		t.Fatalf("billing period = %v", updated.BillingPeriod)
	}
}

func TestCancelSubscriptionKeepsPaidAccessUntilBillingDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})
	if _, err := f.svc.CreateSubscription(context.Background(), account.ID, "professional", "monthly"); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	billingDate := now.Add(30 * 24 * time.Hour)

	cancelled, err := f.svc.CancelSubscription(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if cancelled.SubscriptionStatus == nil || *cancelled.SubscriptionStatus != domain.SubscriptionStatusCancelled {
		t.Fatalf("status = %v", cancelled.SubscriptionStatus)
	}
	if cancelled.PremiumExpiresAt == nil || !cancelled.PremiumExpiresAt.Equal(billingDate) {
		t.Fatalf("paid access must run to %v, got %v", billingDate, cancelled.PremiumExpiresAt)
	}
	if cancelled.BillingPeriod != nil || cancelled.NextBillingDate != nil {
		t.Fatalf("recurring billing fields must clear")
	}

	if _, err := f.svc.CancelSubscription(context.Background(), account.ID); !errors.Is(err, ErrNoActiveSubscription) {
		t.Fatalf("second cancel: expected ErrNoActiveSubscription, got %v", err)
	}
}

func TestStatusReportsCataloguePrice(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})
	if _, err := f.svc.CreateSubscription(context.Background(), account.ID, "individual", "yearly"); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	status, err := f.svc.Status(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PriceRSD != 34000 {
		t.Fatalf("price = %d, want 34000", status.PriceRSD)
	}
}

func TestSyncFromProviderActiveSubscriber(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})
	period := domain.BillingPeriodMonthly
	platform := domain.PlatformIOS
	f.gateway.state = &domain.SubscriberState{
		AccountType:   domain.AccountTypeProfessional,
		BillingPeriod: &period,
		ExpiresAt:     timePtr(now.Add(25 * 24 * time.Hour)),
		IsActive:      true,
		Platform:      &platform,
	}

	updated, err := f.svc.SyncFromProvider(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("SyncFromProvider: %v", err)
	}
	if updated.Type != domain.AccountTypeProfessional {
		t.Fatalf("type = %s", updated.Type)
	}
	if updated.TrialMessagesRemaining != nil {
		t.Fatalf("professional tier must be unmetered after sync")
	}
	if updated.Platform == nil || *updated.Platform != domain.PlatformIOS {
		t.Fatalf("platform = %v", updated.Platform)
	}
	kinds := f.events.kinds()
	if len(kinds) != 1 || kinds[0] != "subscription.synced" {
		t.Fatalf("unexpected events %v", kinds)
	}
}

func TestSyncFromProviderGracePeriodKeepsAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeIndividual,
		Status: domain.AccountStatusActive,
	})
	period := domain.BillingPeriodMonthly
	f.gateway.state = &domain.SubscriberState{
		AccountType:   domain.AccountTypeIndividual,
		BillingPeriod: &period,
		ExpiresAt:     timePtr(now.Add(3 * 24 * time.Hour)),
		IsActive:      false,
		InGracePeriod: true,
	}

	updated, err := f.svc.SyncFromProvider(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("SyncFromProvider: %v", err)
	}
	if updated.Type != domain.AccountTypeIndividual {
		t.Fatalf("grace period must keep the paid tier, got %s", updated.Type)
	}
	if updated.SubscriptionStatus == nil || *updated.SubscriptionStatus != domain.SubscriptionStatusActive {
		t.Fatalf("grace period subscriber must stay active")
	}
	if updated.MessagesRemaining() != 20 {
		t.Fatalf("messages = %d, want 20", updated.MessagesRemaining())
	}
}

func TestSyncFromProviderLapsedSubscriberDropsToTrial(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeProfessional,
		Status: domain.AccountStatusActive,
	})
	f.gateway.state = &domain.SubscriberState{
		AccountType: domain.AccountTypeTrialRegistered,
		ExpiresAt:   timePtr(now.Add(-24 * time.Hour)),
		IsActive:    false,
	}

	updated, err := f.svc.SyncFromProvider(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("SyncFromProvider: %v", err)
	}
	if updated.Type != domain.AccountTypeTrialRegistered {
		t.Fatalf("type = %s, want trial_registered", updated.Type)
	}
	if updated.MessagesRemaining() != 0 {
		t.Fatalf("lapsed subscriber messages = %d, want 0", updated.MessagesRemaining())
	}
	if updated.SubscriptionStatus == nil || *updated.SubscriptionStatus != domain.SubscriptionStatusExpired {
		t.Fatalf("status = %v", updated.SubscriptionStatus)
	}
}

func TestLinkPurchaseForwardsReceiptAndSyncs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})
	period := domain.BillingPeriodYearly
	f.gateway.state = &domain.SubscriberState{
		AccountType:   domain.AccountTypeIndividual,
		BillingPeriod: &period,
		ExpiresAt:     timePtr(now.Add(365 * 24 * time.Hour)),
		IsActive:      true,
	}

	updated, err := f.svc.LinkPurchase(context.Background(), account.ID, "receipt-xyz", true)
	if err != nil {
		t.Fatalf("LinkPurchase: %v", err)
	}
	if len(f.gateway.linked) != 1 || f.gateway.linked[0] != "receipt-xyz" {
		t.Fatalf("receipt not forwarded: %v", f.gateway.linked)
	}
	if len(f.gateway.restores) != 1 || !f.gateway.restores[0] {
		t.Fatalf("restore flag not forwarded")
	}
	if updated.Type != domain.AccountTypeIndividual {
		t.Fatalf("type = %s", updated.Type)
	}
}

func TestHandleProviderEventResyncsSubscriber(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSubscriptionFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})
	period := domain.BillingPeriodMonthly
	f.gateway.state = &domain.SubscriberState{
		AccountType:   domain.AccountTypeProfessional,
		BillingPeriod: &period,
		ExpiresAt:     timePtr(now.Add(25 * 24 * time.Hour)),
		IsActive:      true,
	}

	if err := f.svc.HandleProviderEvent(context.Background(), account.ID); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}
	updated, _ := f.accounts.GetByID(context.Background(), account.ID)
	if updated.Type != domain.AccountTypeProfessional {
		t.Fatalf("type = %s", updated.Type)
	}
}
