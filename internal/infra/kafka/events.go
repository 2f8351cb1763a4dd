package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/infra/config"
	"github.com/nklact/normaai/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: log}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if requestID, ok := ctx.Value(logger.RequestIDKey{}).(string); ok && requestID != "" {
		metadata["request_id"] = requestID
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishTrialStarted publishes norma.trial.started events.
func (p *EventPublisher) PublishTrialStarted(ctx context.Context, event domain.TrialStartedEvent) error {
	payload := struct {
		AccountID         string         `json:"account_id"`
		DeviceFingerprint string         `json:"device_fingerprint"`
		IPAddress         string         `json:"ip_address"`
		MessagesGranted   int            `json:"messages_granted"`
		StartedAt         time.Time      `json:"started_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:         event.AccountID,
		DeviceFingerprint: event.DeviceFingerprint,
		IPAddress:         event.IPAddress,
		MessagesGranted:   event.MessagesGranted,
		StartedAt:         event.StartedAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, "norma.trial.started", event.AccountID, event.StartedAt, payload)
}

// PublishAccountRegistered publishes norma.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID          string         `json:"account_id"`
		Email              string         `json:"email"`
		AccountType        string         `json:"account_type"`
		RegisteredAt       time.Time      `json:"registered_at"`
		TrialMerged        bool           `json:"trial_merged"`
		MessagesInherited  int            `json:"messages_inherited"`
		RegistrationMethod string         `json:"registration_method"`
		Metadata           map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:          event.AccountID,
		Email:              event.Email,
		AccountType:        event.AccountType,
		RegisteredAt:       event.RegisteredAt.UTC(),
		TrialMerged:        event.TrialMerged,
		MessagesInherited:  event.MessagesInherited,
		RegistrationMethod: event.RegistrationMethod,
		Metadata:           event.Metadata,
	}

	return p.publish(ctx, event.EventID, "norma.account.registered", event.AccountID, event.RegisteredAt, payload)
}

// PublishAccountDeleted publishes norma.account.deleted events.
func (p *EventPublisher) PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error {
	payload := struct {
		AccountID       string         `json:"account_id"`
		DeletedAt       time.Time      `json:"deleted_at"`
		GracePeriodEnds time.Time      `json:"grace_period_ends"`
		SessionsRevoked int            `json:"sessions_revoked"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:       event.AccountID,
		DeletedAt:       event.DeletedAt.UTC(),
		GracePeriodEnds: event.GracePeriodEnds.UTC(),
		SessionsRevoked: event.SessionsRevoked,
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, "norma.account.deleted", event.AccountID, event.DeletedAt, payload)
}

// PublishAccountRestored publishes norma.account.restored events.
func (p *EventPublisher) PublishAccountRestored(ctx context.Context, event domain.AccountRestoredEvent) error {
	payload := struct {
		AccountID   string         `json:"account_id"`
		RestoredAt  time.Time      `json:"restored_at"`
		AutoRestore bool           `json:"auto_restore"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:   event.AccountID,
		RestoredAt:  event.RestoredAt.UTC(),
		AutoRestore: event.AutoRestore,
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "norma.account.restored", event.AccountID, event.RestoredAt, payload)
}

// PublishAccountPurged publishes norma.account.purged events.
func (p *EventPublisher) PublishAccountPurged(ctx context.Context, event domain.AccountPurgedEvent) error {
	payload := struct {
		AccountID string         `json:"account_id"`
		PurgedAt  time.Time      `json:"purged_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		AccountID: event.AccountID,
		PurgedAt:  event.PurgedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "norma.account.purged", event.AccountID, event.PurgedAt, payload)
}

// PublishSessionRevoked publishes norma.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string         `json:"session_id"`
		AccountID string         `json:"account_id"`
		RevokedAt time.Time      `json:"revoked_at"`
		Reason    string         `json:"reason"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SessionID: event.SessionID,
		AccountID: event.AccountID,
		RevokedAt: event.RevokedAt.UTC(),
		Reason:    event.Reason,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "norma.session.revoked", event.AccountID, event.RevokedAt, payload)
}

// PublishSubscriptionSynced publishes norma.subscription.synced events.
func (p *EventPublisher) PublishSubscriptionSynced(ctx context.Context, event domain.SubscriptionSyncedEvent) error {
	payload := struct {
		AccountID     string         `json:"account_id"`
		AccountType   string         `json:"account_type"`
		Status        string         `json:"status"`
		ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
		Platform      *string        `json:"platform,omitempty"`
		InGracePeriod bool           `json:"in_grace_period"`
		SyncedAt      time.Time      `json:"synced_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:     event.AccountID,
		AccountType:   event.AccountType,
		Status:        event.Status,
		ExpiresAt:     event.ExpiresAt,
		Platform:      event.Platform,
		InGracePeriod: event.InGracePeriod,
		SyncedAt:      event.SyncedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "norma.subscription.synced", event.AccountID, event.SyncedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
