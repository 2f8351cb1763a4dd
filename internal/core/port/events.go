package port

import (
	"context"

	"github.com/nklact/normaai/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishTrialStarted(ctx context.Context, event domain.TrialStartedEvent) error
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error
	PublishAccountRestored(ctx context.Context, event domain.AccountRestoredEvent) error
	PublishAccountPurged(ctx context.Context, event domain.AccountPurgedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishSubscriptionSynced(ctx context.Context, event domain.SubscriptionSyncedEvent) error
}
