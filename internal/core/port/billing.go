package port

import (
	"context"

	"github.com/nklact/normaai/internal/core/domain"
)

// SubscriberGateway talks to the billing provider about one subscriber.
type SubscriberGateway interface {
	FetchSubscriberState(ctx context.Context, appUserID string) (*domain.SubscriberState, error)
	LinkPurchase(ctx context.Context, appUserID, receiptToken string, isRestore bool) error
}
