package port

import (
	"context"
	"time"

	"github.com/nklact/normaai/internal/core/domain"
)

// TokenRepository persists single-use authentication tokens.
type TokenRepository interface {
	Insert(ctx context.Context, token domain.AuthenticationToken) error
	// Consume atomically marks the token used and returns it. ErrNotFound when
	// the hash does not match an unexpired, unused token of the given purpose.
	Consume(ctx context.Context, tokenHash string, purpose domain.TokenPurpose, at time.Time) (*domain.AuthenticationToken, error)
	DeleteExpired(ctx context.Context, at time.Time) (int64, error)
}
