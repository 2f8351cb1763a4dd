package port

import (
	"context"
	"time"

	"github.com/nklact/normaai/internal/core/domain"
)

// EntitlementCache stores short-lived entitlement snapshots. Lookups are
// best-effort; callers fall back to the database on any error.
type EntitlementCache interface {
	Get(ctx context.Context, accountID string) (*domain.EntitlementSnapshot, error)
	Set(ctx context.Context, snapshot domain.EntitlementSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, accountID string) error
}
