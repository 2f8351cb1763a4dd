package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/repository"
)

const entitlementKeyPrefix = "norma:entitlement"

// EntitlementCache stores evaluated entitlement snapshots in Redis. Postgres
// stays authoritative; a cache miss or Redis outage only costs a re-evaluation.
type EntitlementCache struct {
	client *redis.Client
}

// NewEntitlementCache constructs a cache using the provided Redis client.
func NewEntitlementCache(client *redis.Client) *EntitlementCache {
	return &EntitlementCache{client: client}
}

// Get returns the cached snapshot for the account, or ErrNotFound on a miss.
func (c *EntitlementCache) Get(ctx context.Context, accountID string) (*domain.EntitlementSnapshot, error) {
	payload, err := c.client.Get(ctx, entitlementKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get entitlement: %w", err)
	}

	var snapshot domain.EntitlementSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal entitlement snapshot: %w", err)
	}
	return &snapshot, nil
}

// Set stores the snapshot with the supplied TTL.
func (c *EntitlementCache) Set(ctx context.Context, snapshot domain.EntitlementSnapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal entitlement snapshot: %w", err)
	}

	if err := c.client.Set(ctx, entitlementKey(snapshot.AccountID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set entitlement: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot after any state change that affects it.
func (c *EntitlementCache) Invalidate(ctx context.Context, accountID string) error {
	if err := c.client.Del(ctx, entitlementKey(accountID)).Err(); err != nil {
		return fmt.Errorf("redis del entitlement: %w", err)
	}
	return nil
}

func entitlementKey(accountID string) string {
	return fmt.Sprintf("%s:%s", entitlementKeyPrefix, accountID)
}

var _ port.EntitlementCache = (*EntitlementCache)(nil)
