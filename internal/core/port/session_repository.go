package port

import (
	"context"
	"time"

	"github.com/nklact/normaai/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Insert(ctx context.Context, session domain.Session) (string, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string, ip *string, at time.Time) error

	// TouchByTokenHash atomically bumps last-seen on the live session matching the
	// hash and returns its identifier. ErrNotFound when no live session matches.
	TouchByTokenHash(ctx context.Context, tokenHash string, at time.Time) (string, error)

	// RewriteTokenByDevice swaps the stored token hash on the live session bound
	// to the supplied device identifier, extending its expiry.
	RewriteTokenByDevice(ctx context.Context, accountID, deviceID, tokenHash string, expiresAt, at time.Time) (string, error)
	// RewriteTokenMostRecent is the fallback when no device identifier is known:
	// it rewrites the most recently seen live session for the account.
	RewriteTokenMostRecent(ctx context.Context, accountID, tokenHash string, expiresAt, at time.Time) (string, error)

	CountActive(ctx context.Context, accountID string, at time.Time) (int, error)
	RevokeOldest(ctx context.Context, accountID string, at time.Time) error
	Revoke(ctx context.Context, sessionID, accountID string) (bool, error)
	RevokeAllForAccount(ctx context.Context, accountID string, exceptTokenHash *string) (int, error)
	ListActiveByAccount(ctx context.Context, accountID string, at time.Time) ([]domain.Session, error)

	DeleteStaleForAccount(ctx context.Context, accountID string, at time.Time) (int64, error)
	DeleteStale(ctx context.Context, at time.Time) (int64, error)
}
