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

const accountColumns = `id, email, password_hash, account_type, status, trial_messages_remaining,
device_fingerprint, team_id, premium_expires_at, billing_period, subscription_status,
subscription_started_at, next_billing_date, platform, monthly_llm_cost_usd, current_cost_month,
trial_started_at, email_verified_at, created_at, updated_at, last_login, deleted_at`

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new account row and returns the generated identifier.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) (string, error) {
	var billingPeriod any
	if account.BillingPeriod != nil {
		billingPeriod = string(*account.BillingPeriod)
	}
	var subStatus any
	if account.SubscriptionStatus != nil {
		subStatus = string(*account.SubscriptionStatus)
	}
	var platform any
	if account.Platform != nil {
		platform = string(*account.Platform)
	}
	var messages any
	if account.TrialMessagesRemaining != nil {
		messages = *account.TrialMessagesRemaining
	}

	stmt, args, err := r.builder.Insert("norma.accounts").
		Columns(
			"email",
			"password_hash",
			"account_type",
			"status",
			"trial_messages_remaining",
			"device_fingerprint",
			"team_id",
			"premium_expires_at",
			"billing_period",
			"subscription_status",
			"subscription_started_at",
			"next_billing_date",
			"platform",
			"trial_started_at",
			"email_verified_at",
		).
		Values(
			account.Email,
			optionalString(account.PasswordHash),
			string(account.Type),
			string(account.Status),
			messages,
			optionalString(account.DeviceFingerprint),
			optionalString(account.TeamID),
			optionalTime(account.PremiumExpiresAt),
			billingPeriod,
			subStatus,
			optionalTime(account.SubscriptionStartedAt),
			optionalTime(account.NextBillingDate),
			platform,
			optionalTime(account.TrialStartedAt),
			optionalTime(account.EmailVerifiedAt),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert account sql: %w", err)
	}

	var id string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("insert account: %w", err)
	}

	return id, nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.exec.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM norma.accounts WHERE id = $1", accountColumns), id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.exec.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM norma.accounts WHERE email = $1", accountColumns), email)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan account by email: %w", err)
	}
	return account, nil
}

// GetTrialByFingerprint retrieves an anonymous trial account by device fingerprint.
func (r *AccountRepository) GetTrialByFingerprint(ctx context.Context, fingerprint string) (*domain.Account, error) {
	row := r.exec.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM norma.accounts
 WHERE device_fingerprint = $1 AND account_type = 'trial_unregistered'`, accountColumns), fingerprint)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan trial account: %w", err)
	}
	return account, nil
}

// UpdateLastLogin records the most recent successful authentication.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.exec.Exec(ctx,
		"UPDATE norma.accounts SET last_login = $2, updated_at = $2 WHERE id = $1", id, at.UTC())
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	tag, err := r.exec.Exec(ctx,
		"UPDATE norma.accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1", id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkEmailVerified stamps the verification timestamp once.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := r.exec.Exec(ctx,
		"UPDATE norma.accounts SET email_verified_at = COALESCE(email_verified_at, $2), updated_at = $2 WHERE id = $1",
		id, at.UTC())
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DecrementMessages performs the guarded counter decrement in a single statement.
// Unmetered tiers are excluded in the predicate, so the row count alone decides
// whether a metered message was consumed.
func (r *AccountRepository) DecrementMessages(ctx context.Context, id string) (bool, error) {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET trial_messages_remaining = trial_messages_remaining - 1,
               updated_at = NOW()
         WHERE id = $1
           AND account_type NOT IN ('professional', 'team', 'premium')
           AND trial_messages_remaining > 0
    `, id)
	if err != nil {
		return false, fmt.Errorf("decrement messages: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetIndividualAllowance applies the rolling top-up to one account, guarded
// by the same predicate as the sweep.
func (r *AccountRepository) ResetIndividualAllowance(ctx context.Context, id string, interval time.Duration, allowance int) (bool, error) {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET trial_messages_remaining = $3,
               updated_at = NOW()
         WHERE id = $1
           AND account_type = 'individual'
           AND subscription_started_at IS NOT NULL
           AND (
                trial_messages_remaining IS NULL
                OR (
                    trial_messages_remaining = 0
                    AND EXTRACT(EPOCH FROM (NOW() - COALESCE(updated_at, subscription_started_at))) >= $2
                )
           )
    `, id, int64(interval.Seconds()), allowance)
	if err != nil {
		return false, fmt.Errorf("reset individual allowance: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetIndividualAllowances tops up metered individual subscribers whose rolling
// billing cycle has elapsed since the last counter change.
func (r *AccountRepository) ResetIndividualAllowances(ctx context.Context, interval time.Duration, allowance int) (int64, error) {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET trial_messages_remaining = $2,
               updated_at = NOW()
         WHERE account_type = 'individual'
           AND subscription_started_at IS NOT NULL
           AND (
                trial_messages_remaining IS NULL
                OR (
                    trial_messages_remaining = 0
                    AND EXTRACT(EPOCH FROM (NOW() - COALESCE(updated_at, subscription_started_at))) >= $1
                )
           )
    `, int64(interval.Seconds()), allowance)
	if err != nil {
		return 0, fmt.Errorf("reset individual allowances: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AddMonthlyCost accumulates usage cost, resetting the accumulator whenever the
// calendar month rolls over.
func (r *AccountRepository) AddMonthlyCost(ctx context.Context, id string, month string, amountUSD float64) error {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET monthly_llm_cost_usd = CASE
                   WHEN current_cost_month = $2 THEN COALESCE(monthly_llm_cost_usd, 0) + $3
                   ELSE $3
               END,
               current_cost_month = $2,
               updated_at = NOW()
         WHERE id = $1
    `, id, month, amountUSD)
	if err != nil {
		return fmt.Errorf("add monthly cost: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ApplySubscription provisions a paid plan on the account. Metered individual
// plans receive their allowance; unmetered plans clear the counter.
func (r *AccountRepository) ApplySubscription(ctx context.Context, change port.SubscriptionChange) error {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET account_type = $2,
               billing_period = $3,
               subscription_status = 'active',
               subscription_started_at = $4,
               premium_expires_at = $5,
               next_billing_date = $6,
               team_id = COALESCE($7, team_id),
               trial_messages_remaining = CASE
                   WHEN $2 = 'individual' THEN 20
                   WHEN $2 IN ('professional', 'team') THEN NULL
                   ELSE trial_messages_remaining
               END,
               updated_at = NOW()
         WHERE id = $1
    `,
		change.AccountID,
		string(change.Plan),
		string(change.BillingPeriod),
		change.StartedAt.UTC(),
		change.ExpiresAt.UTC(),
		change.NextBillingDate.UTC(),
		optionalString(change.TeamID),
	)
	if err != nil {
		return fmt.Errorf("apply subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CancelSubscription keeps paid access until the next billing date and clears
// the recurring billing fields.
func (r *AccountRepository) CancelSubscription(ctx context.Context, id string) error {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET premium_expires_at = next_billing_date,
               subscription_status = 'cancelled',
               billing_period = NULL,
               subscription_started_at = NULL,
               next_billing_date = NULL,
               updated_at = NOW()
         WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ApplyBillingSync overwrites subscription state with the reconciled snapshot
// from the billing provider.
func (r *AccountRepository) ApplyBillingSync(ctx context.Context, sync port.BillingSync) error {
	var billingPeriod any
	if sync.BillingPeriod != nil {
		billingPeriod = string(*sync.BillingPeriod)
	}
	var platform any
	if sync.Platform != nil {
		platform = string(*sync.Platform)
	}
	var messages any
	if sync.Messages != nil {
		messages = *sync.Messages
	}

	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET account_type = $2,
               billing_period = $3,
               subscription_status = $4,
               premium_expires_at = $5,
               next_billing_date = $6,
               trial_messages_remaining = CASE WHEN $7::int IS NULL AND $2 IN ('professional', 'team') THEN NULL
                                               WHEN $7::int IS NULL THEN trial_messages_remaining
                                               ELSE $7::int END,
               platform = COALESCE($8, platform),
               updated_at = NOW()
         WHERE id = $1
    `,
		sync.AccountID,
		string(sync.AccountType),
		billingPeriod,
		string(sync.Status),
		optionalTime(sync.PremiumExpiresAt),
		optionalTime(sync.NextBillingDate),
		messages,
		platform,
	)
	if err != nil {
		return fmt.Errorf("apply billing sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SoftDelete marks the account deleted while keeping the row recoverable.
func (r *AccountRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tag, err := r.exec.Exec(ctx, `
        UPDATE norma.accounts
           SET status = 'deleted',
               deleted_at = $2,
               updated_at = $2
         WHERE id = $1 AND status = 'active'
    `, id, at.UTC())
	if err != nil {
		return fmt.Errorf("soft delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Restore revives a soft-deleted account. The grace window is enforced in the
// predicate so restoration past the window reports ErrNotFound instead of
// silently reviving a purge candidate.
func (r *AccountRepository) Restore(ctx context.Context, id string, grace time.Duration) (*domain.Account, error) {
	row := r.exec.QueryRow(ctx, fmt.Sprintf(`
        UPDATE norma.accounts
           SET status = 'active',
               deleted_at = NULL,
               updated_at = NOW()
         WHERE id = $1
           AND status = 'deleted'
           AND deleted_at > NOW() - make_interval(secs => $2)
        RETURNING %s
    `, accountColumns), id, int64(grace.Seconds()))

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("restore account: %w", err)
	}
	return account, nil
}

// ListExpiredDeleted returns identifiers of soft-deleted accounts whose grace
// window lapsed before the cutoff.
func (r *AccountRepository) ListExpiredDeleted(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.exec.Query(ctx,
		"SELECT id FROM norma.accounts WHERE status = 'deleted' AND deleted_at < $1", cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired deleted accounts: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired deleted accounts: %w", err)
	}
	return ids, nil
}

// Purge permanently removes the account row.
func (r *AccountRepository) Purge(ctx context.Context, id string) error {
	tag, err := r.exec.Exec(ctx, "DELETE FROM norma.accounts WHERE id = $1 AND status = 'deleted'", id)
	if err != nil {
		return fmt.Errorf("purge account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountOtherActiveTeamMembers counts active accounts sharing the team besides
// the supplied one.
func (r *AccountRepository) CountOtherActiveTeamMembers(ctx context.Context, teamID, excludeID string) (int, error) {
	var count int
	err := r.exec.QueryRow(ctx, `
        SELECT COUNT(*) FROM norma.accounts
         WHERE team_id = $1 AND id <> $2 AND status = 'active'
    `, teamID, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count team members: %w", err)
	}
	return count, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account        domain.Account
		passwordHash   sql.NullString
		accountType    string
		status         string
		messages       sql.NullInt32
		fingerprint    sql.NullString
		teamID         sql.NullString
		premiumExpires sql.NullTime
		billingPeriod  sql.NullString
		subStatus      sql.NullString
		subStarted     sql.NullTime
		nextBilling    sql.NullTime
		platform       sql.NullString
		monthlyCost    sql.NullFloat64
		costMonth      sql.NullString
		trialStarted   sql.NullTime
		emailVerified  sql.NullTime
		updatedAt      sql.NullTime
		lastLogin      sql.NullTime
		deletedAt      sql.NullTime
	)

	if err := row.Scan(
		&account.ID,
		&account.Email,
		&passwordHash,
		&accountType,
		&status,
		&messages,
		&fingerprint,
		&teamID,
		&premiumExpires,
		&billingPeriod,
		&subStatus,
		&subStarted,
		&nextBilling,
		&platform,
		&monthlyCost,
		&costMonth,
		&trialStarted,
		&emailVerified,
		&account.CreatedAt,
		&updatedAt,
		&lastLogin,
		&deletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	account.Type = domain.AccountType(accountType)
	account.Status = domain.AccountStatus(status)
	account.PasswordHash = nullableStringPtr(passwordHash)
	account.TrialMessagesRemaining = nullableIntPtr(messages)
	account.DeviceFingerprint = nullableStringPtr(fingerprint)
	account.TeamID = nullableStringPtr(teamID)
	account.PremiumExpiresAt = nullableTimePtr(premiumExpires)
	if billingPeriod.Valid {
		bp := domain.BillingPeriod(billingPeriod.String)
		account.BillingPeriod = &bp
	}
	if subStatus.Valid {
		ss := domain.SubscriptionStatus(subStatus.String)
		account.SubscriptionStatus = &ss
	}
	account.SubscriptionStartedAt = nullableTimePtr(subStarted)
	account.NextBillingDate = nullableTimePtr(nextBilling)
	if platform.Valid {
		p := domain.Platform(platform.String)
		account.Platform = &p
	}
	if monthlyCost.Valid {
		account.MonthlyLLMCostUSD = monthlyCost.Float64
	}
	account.CurrentCostMonth = nullableStringPtr(costMonth)
	account.TrialStartedAt = nullableTimePtr(trialStarted)
	account.EmailVerifiedAt = nullableTimePtr(emailVerified)
	account.UpdatedAt = nullableTimePtr(updatedAt)
	account.LastLogin = nullableTimePtr(lastLogin)
	account.DeletedAt = nullableTimePtr(deletedAt)

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
