package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nklact/normaai/internal/core/domain"
)

const testFingerprint = "a3f1c2d4e5b6978811223344556677889900aabbccddeeff0011223344556677"

func trialFixture(at time.Time) (*TrialService, *fakeAccountRepo, *fakeThrottleRepo, *fakePublisher) {
	accounts := newFakeAccountRepo()
	throttle := newFakeThrottleRepo()
	events := &fakePublisher{}
	svc := NewTrialService(accounts, throttle, events, nil, 5, 3)
	svc.WithClock(fixedClock(at))
	return svc, accounts, throttle, events
}

func TestStartTrialProvisionsAccount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, throttle, events := trialFixture(now)

	account, err := svc.StartTrial(context.Background(), testFingerprint, "203.0.113.7")
	if err != nil {
		t.Fatalf("StartTrial: %v", err)
	}
	if account.Type != domain.AccountTypeTrialUnregistered {
		t.Fatalf("type = %s", account.Type)
	}
	if account.MessagesRemaining() != 5 {
		t.Fatalf("messages = %d, want 5", account.MessagesRemaining())
	}
	wantEmail := "unregistered_" + testFingerprint[:8] + "@trial.local"
	if account.Email != wantEmail {
		t.Fatalf("email = %q, want %q", account.Email, wantEmail)
	}
	if throttle.counts["203.0.113.7"] != 1 {
		t.Fatalf("throttle count = %d", throttle.counts["203.0.113.7"])
	}
	kinds := events.kinds()
	if len(kinds) != 1 || kinds[0] != "trial.started" {
		t.Fatalf("unexpected events %v", kinds)
	}
	event := events.events[0].payload.(domain.TrialStartedEvent)
	if strings.Contains(event.IPAddress, "203.0.113.7") {
		t.Fatalf("event must not carry the raw address, got %q", event.IPAddress)
	}
}

func TestStartTrialIdempotentPerFingerprint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, throttle, events := trialFixture(now)

	first, err := svc.StartTrial(context.Background(), testFingerprint, "203.0.113.7")
	if err != nil {
		t.Fatalf("StartTrial: %v", err)
	}
	second, err := svc.StartTrial(context.Background(), testFingerprint, "203.0.113.7")
	if err != nil {
		t.Fatalf("StartTrial repeat: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeat call minted a new account")
	}
	if throttle.counts["203.0.113.7"] != 1 {
		t.Fatalf("repeat call recorded a second trial")
	}
	if len(events.kinds()) != 1 {
		t.Fatalf("repeat call published a second event")
	}
}

func TestStartTrialEnforcesAddressLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, throttle, _ := trialFixture(now)
	throttle.counts["203.0.113.7"] = 3

	if _, err := svc.StartTrial(context.Background(), testFingerprint, "203.0.113.7"); !errors.Is(err, ErrTrialLimitReached) {
		t.Fatalf("expected ErrTrialLimitReached, got %v", err)
	}
}

func TestStartTrialExistingFingerprintBypassesAddressLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, accounts, throttle, _ := trialFixture(now)
	fingerprint := testFingerprint
	accounts.put(domain.Account{
		Email:             "unregistered_a3f1c2d4@trial.local",
		Type:              domain.AccountTypeTrialUnregistered,
		Status:            domain.AccountStatusActive,
		DeviceFingerprint: &fingerprint,
	})
	throttle.counts["203.0.113.7"] = 3

	if _, err := svc.StartTrial(context.Background(), testFingerprint, "203.0.113.7"); err != nil {
		t.Fatalf("existing trial must resolve before the address check: %v", err)
	}
}

func TestStartTrialRejectsMalformedFingerprint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _, _ := trialFixture(now)

	for _, fingerprint := range []string{
		"",
		"short",
		strings.Repeat("g", 64),
		strings.Repeat("a", 63),
		strings.Repeat("a", 65),
	} {
		if _, err := svc.StartTrial(context.Background(), fingerprint, "203.0.113.7"); !errors.Is(err, ErrInvalidFingerprint) {
			t.Fatalf("fingerprint %q: expected ErrInvalidFingerprint, got %v", fingerprint, err)
		}
	}
}

func TestStartTrialNormalizesFingerprintCase(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _, _ := trialFixture(now)

	account, err := svc.StartTrial(context.Background(), strings.ToUpper(testFingerprint), "203.0.113.7")
	if err != nil {
		t.Fatalf("StartTrial: %v", err)
	}
	if account.DeviceFingerprint == nil || *account.DeviceFingerprint != testFingerprint {
		t.Fatalf("fingerprint not lowercased")
	}
}

func TestTrialStatusUnknownFingerprint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _, _ := trialFixture(now)

	if _, err := svc.TrialStatus(context.Background(), testFingerprint); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
