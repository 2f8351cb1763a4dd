package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nklact/normaai/internal/core/port"
)

// TrialThrottleRepository implements port.TrialThrottleRepository using PostgreSQL.
// The counter is lifetime per address, never windowed, so serial trial farming
// from one address stays blocked after the limit is reached.
type TrialThrottleRepository struct {
	pool *pgxpool.Pool
	exec pgExecutor
}

// NewTrialThrottleRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTrialThrottleRepository(exec pgExecutor) *TrialThrottleRepository {
	repo := &TrialThrottleRepository{exec: exec}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// CountForIP returns how many trials have ever been provisioned from the address.
func (r *TrialThrottleRepository) CountForIP(ctx context.Context, ip string) (int, error) {
	var count int
	err := r.exec.QueryRow(ctx,
		"SELECT COALESCE(trial_count, 0) FROM norma.trial_ip_records WHERE ip_address = $1", ip).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count trials for ip: %w", err)
	}
	return count, nil
}

// RecordTrial increments the per-address counter, inserting on first use.
func (r *TrialThrottleRepository) RecordTrial(ctx context.Context, ip string, at time.Time) error {
	_, err := r.exec.Exec(ctx, `
        INSERT INTO norma.trial_ip_records (ip_address, trial_count, first_trial_at, last_trial_at)
        VALUES ($1, 1, $2, $2)
        ON CONFLICT (ip_address) DO UPDATE
           SET trial_count = norma.trial_ip_records.trial_count + 1,
               last_trial_at = EXCLUDED.last_trial_at
    `, ip, at.UTC())
	if err != nil {
		return fmt.Errorf("record trial: %w", err)
	}
	return nil
}

var _ port.TrialThrottleRepository = (*TrialThrottleRepository)(nil)
