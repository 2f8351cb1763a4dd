package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Insert persists a single-use token.
func (r *TokenRepository) Insert(ctx context.Context, token domain.AuthenticationToken) error {
	stmt, args, err := r.builder.Insert("norma.auth_tokens").
		Columns("account_id", "token_hash", "purpose", "created_at", "expires_at").
		Values(token.AccountID, token.TokenHash, string(token.Purpose), token.CreatedAt.UTC(), token.ExpiresAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert auth token: %w", err)
	}
	return nil
}

// Consume marks the token used and returns it. The used_at guard in the
// predicate makes double spends lose the race.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash string, purpose domain.TokenPurpose, at time.Time) (*domain.AuthenticationToken, error) {
	row := r.exec.QueryRow(ctx, `
        UPDATE norma.auth_tokens
           SET used_at = $3
         WHERE token_hash = $1
           AND purpose = $2
           AND used_at IS NULL
           AND expires_at > $3
        RETURNING id, account_id, token_hash, purpose, created_at, expires_at, used_at
    `, tokenHash, string(purpose), at.UTC())

	var (
		token   domain.AuthenticationToken
		rawKind string
		usedAt  sql.NullTime
	)
	if err := row.Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&rawKind,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("consume auth token: %w", err)
	}
	token.Purpose = domain.TokenPurpose(rawKind)
	token.UsedAt = nullableTimePtr(usedAt)

	return &token, nil
}

// DeleteExpired removes tokens past their expiry.
func (r *TokenRepository) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	tag, err := r.exec.Exec(ctx, "DELETE FROM norma.auth_tokens WHERE expires_at < $1", at.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired auth tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
