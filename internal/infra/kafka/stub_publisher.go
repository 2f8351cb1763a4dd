package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishTrialStarted logs norma.trial.started events.
func (p *StubPublisher) PublishTrialStarted(_ context.Context, event domain.TrialStartedEvent) error {
	payload := map[string]any{
		"device_fingerprint": event.DeviceFingerprint,
		"ip_address":         event.IPAddress,
		"messages_granted":   event.MessagesGranted,
		"metadata":           event.Metadata,
	}
	p.logEvent("norma.trial.started", event.AccountID, event.StartedAt, payload)
	return nil
}

// PublishAccountRegistered logs norma.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"email":               event.Email,
		"account_type":        event.AccountType,
		"trial_merged":        event.TrialMerged,
		"messages_inherited":  event.MessagesInherited,
		"registration_method": event.RegistrationMethod,
		"metadata":            event.Metadata,
	}
	p.logEvent("norma.account.registered", event.AccountID, event.RegisteredAt, payload)
	return nil
}

// PublishAccountDeleted logs norma.account.deleted events.
func (p *StubPublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	payload := map[string]any{
		"grace_period_ends": event.GracePeriodEnds,
		"sessions_revoked":  event.SessionsRevoked,
		"metadata":          event.Metadata,
	}
	p.logEvent("norma.account.deleted", event.AccountID, event.DeletedAt, payload)
	return nil
}

// PublishAccountRestored logs norma.account.restored events.
func (p *StubPublisher) PublishAccountRestored(_ context.Context, event domain.AccountRestoredEvent) error {
	payload := map[string]any{
		"auto_restore": event.AutoRestore,
		"metadata":     event.Metadata,
	}
	p.logEvent("norma.account.restored", event.AccountID, event.RestoredAt, payload)
	return nil
}

// PublishAccountPurged logs norma.account.purged events.
func (p *StubPublisher) PublishAccountPurged(_ context.Context, event domain.AccountPurgedEvent) error {
	payload := map[string]any{
		"metadata": event.Metadata,
	}
	p.logEvent("norma.account.purged", event.AccountID, event.PurgedAt, payload)
	return nil
}

// PublishSessionRevoked logs norma.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"reason":     event.Reason,
		"metadata":   event.Metadata,
	}
	p.logEvent("norma.session.revoked", event.AccountID, event.RevokedAt, payload)
	return nil
}

// PublishSubscriptionSynced logs norma.subscription.synced events.
func (p *StubPublisher) PublishSubscriptionSynced(_ context.Context, event domain.SubscriptionSyncedEvent) error {
	payload := map[string]any{
		"account_type":    event.AccountType,
		"status":          event.Status,
		"expires_at":      event.ExpiresAt,
		"platform":        event.Platform,
		"in_grace_period": event.InGracePeriod,
		"metadata":        event.Metadata,
	}
	p.logEvent("norma.subscription.synced", event.AccountID, event.SyncedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
