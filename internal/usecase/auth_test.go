package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/infra/security"
)

func testHasher() *security.PasswordHasher {
	// Lightweight parameters keep the hashing rounds fast in tests.
	return security.NewPasswordHasher(security.Argon2Config{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	})
}

type authFixture struct {
	svc      *AuthService
	accounts *fakeAccountRepo
	sessions *fakeSessionRepo
	tokens   *fakeTokenRepo
	events   *fakePublisher
	issuer   *security.HS256Issuer
}

func newAuthFixture(t *testing.T, at time.Time) *authFixture {
	t.Helper()
	accounts := newFakeAccountRepo()
	sessionRepo := newFakeSessionRepo()
	tokens := newFakeTokenRepo()
	events := &fakePublisher{}
	issuer := security.NewHS256Issuer(localIssuerName, "test-secret", time.Hour).
		WithClock(fixedClock(at))
	sessions := NewSessionService(sessionRepo, events, nil, 5, 30*24*time.Hour)
	sessions.WithClock(fixedClock(at))
	svc := NewAuthService(accounts, sessions, tokens, testHasher(), nil, issuer, events, nil)
	svc.WithClock(fixedClock(at))
	return &authFixture{
		svc:      svc,
		accounts: accounts,
		sessions: sessionRepo,
		tokens:   tokens,
		events:   events,
		issuer:   issuer,
	}
}

const validPassword = "correct horse 9 battery"

func TestRegisterCreatesTrialAccountWithSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)

	result, err := f.svc.Register(context.Background(), "User@Example.com", validPassword, nil, domain.DeviceInfo{}, nil, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Account.Email != "user@example.com" {
		t.Fatalf("email not normalised: %q", result.Account.Email)
	}
	if result.Account.Type != domain.AccountTypeTrialRegistered {
		t.Fatalf("type = %s", result.Account.Type)
	}
	if result.Account.MessagesRemaining() != 5 {
		t.Fatalf("messages = %d, want 5", result.Account.MessagesRemaining())
	}
	if result.Token == "" || result.SessionID == "" {
		t.Fatalf("registration must establish a session")
	}
	if result.VerificationToken == "" {
		t.Fatalf("missing verification token")
	}
	if !result.VerificationExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("verification expiry = %v", result.VerificationExpiresAt)
	}
	stored, ok := f.tokens.tokens[security.HashToken(result.VerificationToken)]
	if !ok {
		t.Fatalf("verification token not stored hashed")
	}
	if stored.Purpose != domain.TokenPurposeEmailVerification {
		t.Fatalf("purpose = %s", stored.Purpose)
	}
}

func TestRegisterInheritsTrialAllowance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	fingerprint := testFingerprint
	f.accounts.put(domain.Account{
		Email:                  "unregistered_a3f1c2d4@trial.local",
		Type:                   domain.AccountTypeTrialUnregistered,
		Status:                 domain.AccountStatusActive,
		TrialMessagesRemaining: intPtr(2),
		DeviceFingerprint:      &fingerprint,
	})

	result, err := f.svc.Register(context.Background(), "user@example.com", validPassword, &fingerprint, domain.DeviceInfo{}, nil, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Account.MessagesRemaining() != 2 {
		t.Fatalf("inherited messages = %d, want 2", result.Account.MessagesRemaining())
	}
	stored := f.accounts.accounts[result.Account.ID]
	if stored.DeviceFingerprint == nil || *stored.DeviceFingerprint != fingerprint {
		t.Fatalf("merged account fingerprint = %v, want %q", stored.DeviceFingerprint, fingerprint)
	}
	event := f.events.events[len(f.events.events)-1].payload.(domain.AccountRegisteredEvent)
	if !event.TrialMerged || event.MessagesInherited != 2 {
		t.Fatalf("unexpected registration event %+v", event)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeTrialRegistered,
		Status: domain.AccountStatusActive,
	})

	if _, err := f.svc.Register(context.Background(), "user@example.com", validPassword, nil, domain.DeviceInfo{}, nil, nil); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)

	if _, err := f.svc.Register(context.Background(), "user@example.com", "abc1", nil, domain.DeviceInfo{}, nil, nil); !errors.Is(err, ErrPasswordPolicyViolation) {
		t.Fatalf("expected ErrPasswordPolicyViolation, got %v", err)
	}
}

func TestLoginVerifiesPassword(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	hash, err := testHasher().Hash(validPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	account := f.accounts.put(domain.Account{
		Email:        "user@example.com",
		PasswordHash: &hash,
		Type:         domain.AccountTypeIndividual,
		Status:       domain.AccountStatusActive,
	})

	session, err := f.svc.Login(context.Background(), "user@example.com", validPassword, domain.DeviceInfo{}, nil, nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Account.ID != account.ID {
		t.Fatalf("wrong account %s", session.Account.ID)
	}
	updated, _ := f.accounts.GetByID(context.Background(), account.ID)
	if updated.LastLogin == nil {
		t.Fatalf("last login not recorded")
	}

	if _, err := f.svc.Login(context.Background(), "user@example.com", "wrong-password-1", domain.DeviceInfo{}, nil, nil); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "nobody@example.com", validPassword, domain.DeviceInfo{}, nil, nil); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginRevivesSoftDeletedAccount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	hash, err := testHasher().Hash(validPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	account := f.accounts.put(domain.Account{
		Email:        "user@example.com",
		PasswordHash: &hash,
		Type:         domain.AccountTypeIndividual,
		Status:       domain.AccountStatusDeleted,
		DeletedAt:    timePtr(now.Add(-24 * time.Hour)),
	})
	f.accounts.clock = fixedClock(now)
	lifecycle := NewLifecycleService(f.accounts, f.svc.sessions, f.events, nil, 30*24*time.Hour)
	lifecycle.WithClock(fixedClock(now))
	f.svc.WithLifecycle(lifecycle)

	session, err := f.svc.Login(context.Background(), "user@example.com", validPassword, domain.DeviceInfo{}, nil, nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Account.Status != domain.AccountStatusActive {
		t.Fatalf("account not revived")
	}
	restored, _ := f.accounts.GetByID(context.Background(), account.ID)
	if restored.Status != domain.AccountStatusActive || restored.DeletedAt != nil {
		t.Fatalf("stored account not restored: %+v", restored)
	}
}

func TestRefreshRotatesSessionInPlace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeIndividual,
		Status: domain.AccountStatusActive,
	})

	oldToken, _, err := f.issuer.Issue(account.ID, account.Email)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	session := f.sessions.put(domain.Session{
		AccountID:  account.ID,
		TokenHash:  security.HashToken(oldToken),
		DeviceID:   strPtr("dev-1"),
		LastSeenAt: now,
		ExpiresAt:  now.Add(time.Hour),
	})

	refreshed, err := f.svc.Refresh(context.Background(), oldToken, domain.DeviceInfo{DeviceID: strPtr("dev-1")})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.SessionID != session.ID {
		t.Fatalf("refresh minted a new session")
	}
	if f.sessions.sessions[session.ID].TokenHash != security.HashToken(refreshed.Token) {
		t.Fatalf("session not rewritten onto the new token")
	}
	if len(f.sessions.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(f.sessions.sessions))
	}
}

func TestRefreshAcceptsExpiredToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:  "user@example.com",
		Type:   domain.AccountTypeIndividual,
		Status: domain.AccountStatusActive,
	})

	expired, _, err := f.issuer.WithClock(fixedClock(now.Add(-3 * time.Hour))).Issue(account.ID, account.Email)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	f.issuer.WithClock(fixedClock(now))
	f.sessions.put(domain.Session{
		AccountID:  account.ID,
		TokenHash:  security.HashToken(expired),
		LastSeenAt: now.Add(-3 * time.Hour),
		ExpiresAt:  now.Add(time.Hour),
	})

	refreshed, err := f.svc.Refresh(context.Background(), expired, domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Token == expired {
		t.Fatalf("refresh returned the stale token")
	}
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)

	forged := security.NewHS256Issuer(localIssuerName, "wrong-secret", time.Hour).
		WithClock(fixedClock(now))
	token, _, err := forged.Issue("acct-1", "user@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := f.svc.Refresh(context.Background(), token, domain.DeviceInfo{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRejectsDeletedAccount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newAuthFixture(t, now)
	account := f.accounts.put(domain.Account{
		Email:     "user@example.com",
		Type:      domain.AccountTypeIndividual,
		Status:    domain.AccountStatusDeleted,
		DeletedAt: timePtr(now.Add(-time.Hour)),
	})

	token, _, err := f.issuer.Issue(account.ID, account.Email)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := f.svc.Refresh(context.Background(), token, domain.DeviceInfo{}); !errors.Is(err, ErrAccountDeleted) {
		t.Fatalf("expected ErrAccountDeleted, got %v", err)
	}
}
