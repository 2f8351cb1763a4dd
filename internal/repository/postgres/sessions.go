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

const sessionColumns = `id, account_id, token_hash, device_id, device_name, ip_address,
user_agent, created_at, last_seen_at, expires_at, revoked`

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Insert persists a new session row and returns the generated identifier.
func (r *SessionRepository) Insert(ctx context.Context, session domain.Session) (string, error) {
	stmt, args, err := r.builder.Insert("norma.sessions").
		Columns(
			"account_id",
			"token_hash",
			"device_id",
			"device_name",
			"ip_address",
			"user_agent",
			"created_at",
			"last_seen_at",
			"expires_at",
			"revoked",
		).
		Values(
			session.AccountID,
			session.TokenHash,
			optionalString(session.DeviceID),
			optionalString(session.DeviceName),
			optionalString(session.IPAddress),
			optionalString(session.UserAgent),
			session.CreatedAt.UTC(),
			session.LastSeenAt.UTC(),
			session.ExpiresAt.UTC(),
			session.Revoked,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert session sql: %w", err)
	}

	var id string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// GetByTokenHash fetches a session by its token digest regardless of liveness.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	row := r.exec.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM norma.sessions WHERE token_hash = $1", sessionColumns), tokenHash)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// Touch refreshes last-seen and, when supplied, the caller's address.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, ip *string, at time.Time) error {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.sessions
           SET last_seen_at = $2,
               ip_address = COALESCE($3, ip_address)
         WHERE id = $1
    `, sessionID, at.UTC(), optionalString(ip))
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TouchByTokenHash bumps last-seen on the live session matching the hash in a
// single statement. Liveness is checked in the predicate so validation and
// activity tracking cannot race.
func (r *SessionRepository) TouchByTokenHash(ctx context.Context, tokenHash string, at time.Time) (string, error) {
	var id string
	err := r.exec.QueryRow(ctx, `
        UPDATE norma.sessions
           SET last_seen_at = $2
         WHERE token_hash = $1
           AND revoked = FALSE
           AND expires_at > $2
        RETURNING id
    `, tokenHash, at.UTC()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("touch session by token hash: %w", err)
	}
	return id, nil
}

// RewriteTokenByDevice swaps the token hash on the live session bound to the
// device, extending its expiry in place.
func (r *SessionRepository) RewriteTokenByDevice(ctx context.Context, accountID, deviceID, tokenHash string, expiresAt, at time.Time) (string, error) {
	var id string
	err := r.exec.QueryRow(ctx, `
        UPDATE norma.sessions
           SET token_hash = $3,
               expires_at = $4,
               last_seen_at = $5
         WHERE account_id = $1
           AND device_id = $2
           AND revoked = FALSE
           AND expires_at > $5
        RETURNING id
    `, accountID, deviceID, tokenHash, expiresAt.UTC(), at.UTC()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("rewrite session token by device: %w", err)
	}
	return id, nil
}

// RewriteTokenMostRecent rewrites the most recently seen live session for the
// account when no device identifier is available.
func (r *SessionRepository) RewriteTokenMostRecent(ctx context.Context, accountID, tokenHash string, expiresAt, at time.Time) (string, error) {
	var id string
	err := r.exec.QueryRow(ctx, `
        UPDATE norma.sessions
           SET token_hash = $2,
               expires_at = $3,
               last_seen_at = $4
         WHERE id = (
               SELECT id FROM norma.sessions
                WHERE account_id = $1
                  AND revoked = FALSE
                  AND expires_at > $4
                ORDER BY last_seen_at DESC
                LIMIT 1
         )
        RETURNING id
    `, accountID, tokenHash, expiresAt.UTC(), at.UTC()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("rewrite most recent session token: %w", err)
	}
	return id, nil
}

// CountActive counts live sessions for the account.
func (r *SessionRepository) CountActive(ctx context.Context, accountID string, at time.Time) (int, error) {
	var count int
	err := r.exec.QueryRow(ctx, `
        SELECT COUNT(*) FROM norma.sessions
         WHERE account_id = $1 AND revoked = FALSE AND expires_at > $2
    `, accountID, at.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

// RevokeOldest revokes the least recently seen live session for the account.
func (r *SessionRepository) RevokeOldest(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.exec.Exec(ctx, `
        UPDATE norma.sessions
           SET revoked = TRUE
         WHERE id = (
               SELECT id FROM norma.sessions
                WHERE account_id = $1
                  AND revoked = FALSE
                  AND expires_at > $2
                ORDER BY last_seen_at ASC
                LIMIT 1
         )
    `, accountID, at.UTC())
	if err != nil {
		return fmt.Errorf("revoke oldest session: %w", err)
	}
	return nil
}

// Revoke marks one session revoked, scoped to the owning account.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID, accountID string) (bool, error) {
	tag, err := r.exec.Exec(ctx,
		"UPDATE norma.sessions SET revoked = TRUE WHERE id = $1 AND account_id = $2 AND revoked = FALSE",
		sessionID, accountID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForAccount revokes every live session for the account, optionally
// sparing the one matching the supplied token hash.
func (r *SessionRepository) RevokeAllForAccount(ctx context.Context, accountID string, exceptTokenHash *string) (int, error) {
	var (
		tagCount int64
	)
	if exceptTokenHash != nil {
		tag, err := r.exec.Exec(ctx,
			"UPDATE norma.sessions SET revoked = TRUE WHERE account_id = $1 AND revoked = FALSE AND token_hash <> $2",
			accountID, *exceptTokenHash)
		if err != nil {
			return 0, fmt.Errorf("revoke sessions for account: %w", err)
		}
		tagCount = tag.RowsAffected()
	} else {
		tag, err := r.exec.Exec(ctx,
			"UPDATE norma.sessions SET revoked = TRUE WHERE account_id = $1 AND revoked = FALSE", accountID)
		if err != nil {
			return 0, fmt.Errorf("revoke sessions for account: %w", err)
		}
		tagCount = tag.RowsAffected()
	}
	return int(tagCount), nil
}

// ListActiveByAccount returns live sessions ordered by recency.
func (r *SessionRepository) ListActiveByAccount(ctx context.Context, accountID string, at time.Time) ([]domain.Session, error) {
	rows, err := r.exec.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM norma.sessions
         WHERE account_id = $1 AND revoked = FALSE AND expires_at > $2
         ORDER BY last_seen_at DESC
    `, sessionColumns), accountID, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteStaleForAccount removes expired and long-idle sessions for one account.
func (r *SessionRepository) DeleteStaleForAccount(ctx context.Context, accountID string, at time.Time) (int64, error) {
	tag, err := r.exec.Exec(ctx, staleSessionPredicate("account_id = $1 AND"), accountID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions for account: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStale removes expired and long-idle sessions across all accounts.
func (r *SessionRepository) DeleteStale(ctx context.Context, at time.Time) (int64, error) {
	tag, err := r.exec.Exec(ctx, staleSessionPredicateGlobal(), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Revoked sessions linger seven days for audit visibility; live but idle
// sessions are reaped after ninety days.
func staleSessionPredicate(scope string) string {
	return fmt.Sprintf(`
        DELETE FROM norma.sessions
         WHERE %s (
               expires_at < $2
               OR (revoked = TRUE AND last_seen_at < $2 - INTERVAL '7 days')
               OR (revoked = FALSE AND last_seen_at < $2 - INTERVAL '90 days')
         )
    `, scope)
}

func staleSessionPredicateGlobal() string {
	return `
        DELETE FROM norma.sessions
         WHERE expires_at < $1
            OR (revoked = TRUE AND last_seen_at < $1 - INTERVAL '7 days')
            OR (revoked = FALSE AND last_seen_at < $1 - INTERVAL '90 days')
    `
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session    domain.Session
		deviceID   sql.NullString
		deviceName sql.NullString
		ipAddress  sql.NullString
		userAgent  sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.TokenHash,
		&deviceID,
		&deviceName,
		&ipAddress,
		&userAgent,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
		&session.Revoked,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	session.DeviceID = nullableStringPtr(deviceID)
	session.DeviceName = nullableStringPtr(deviceName)
	session.IPAddress = nullableStringPtr(ipAddress)
	session.UserAgent = nullableStringPtr(userAgent)

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
