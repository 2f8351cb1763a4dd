package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultCleanupInterval = 24 * time.Hour

// SessionJanitor removes stale session rows.
type SessionJanitor interface {
	CleanupStale(ctx context.Context) (int64, error)
}

// TokenJanitor removes spent and expired single-use tokens.
type TokenJanitor interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// AccountJanitor purges accounts past the deletion grace window.
type AccountJanitor interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// AllowanceRefresher tops up metered subscribers whose cycle has elapsed.
type AllowanceRefresher interface {
	ResetMonthlyAllowances(ctx context.Context) (int64, error)
}

// Cleanup runs periodic maintenance: stale sessions, expired tokens, purgeable
// accounts, and allowance resets. Every task is independent; one failing never
// stops the others.
type Cleanup struct {
	sessions   SessionJanitor
	tokens     TokenJanitor
	accounts   AccountJanitor
	allowances AllowanceRefresher
	logger     *zap.Logger
	interval   time.Duration
}

// NewCleanup constructs the maintenance worker.
func NewCleanup(sessions SessionJanitor, tokens TokenJanitor, accounts AccountJanitor, allowances AllowanceRefresher, logger *zap.Logger, interval time.Duration) *Cleanup {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &Cleanup{
		sessions:   sessions,
		tokens:     tokens,
		accounts:   accounts,
		allowances: allowances,
		logger:     logger,
		interval:   interval,
	}
}

// Run executes one pass immediately and then on every tick until the context
// is cancelled.
func (c *Cleanup) Run(ctx context.Context) {
	c.logger.Info("cleanup worker started", zap.Duration("interval", c.interval))

	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single maintenance pass.
func (c *Cleanup) RunOnce(ctx context.Context) {
	start := time.Now()

	if c.sessions != nil {
		if removed, err := c.sessions.CleanupStale(ctx); err != nil {
			c.logger.Warn("stale session cleanup failed", zap.Error(err))
		} else if removed > 0 {
			c.logger.Info("stale sessions removed", zap.Int64("count", removed))
		}
	}

	if c.tokens != nil {
		if removed, err := c.tokens.CleanupExpiredTokens(ctx); err != nil {
			c.logger.Warn("expired token cleanup failed", zap.Error(err))
		} else if removed > 0 {
			c.logger.Info("expired tokens removed", zap.Int64("count", removed))
		}
	}

	if c.accounts != nil {
		if purged, err := c.accounts.PurgeExpired(ctx); err != nil {
			c.logger.Warn("account purge failed", zap.Error(err))
		} else if purged > 0 {
			c.logger.Info("deleted accounts purged", zap.Int("count", purged))
		}
	}

	if c.allowances != nil {
		if reset, err := c.allowances.ResetMonthlyAllowances(ctx); err != nil {
			c.logger.Warn("allowance reset failed", zap.Error(err))
		} else if reset > 0 {
			c.logger.Info("monthly allowances reset", zap.Int64("count", reset))
		}
	}

	c.logger.Debug("cleanup pass finished", zap.Duration("took", time.Since(start)))
}
