package port

import (
	"context"
	"time"
)

// TrialThrottleRepository tracks lifetime trial starts per source IP.
type TrialThrottleRepository interface {
	CountForIP(ctx context.Context, ip string) (int, error)
	RecordTrial(ctx context.Context, ip string, at time.Time) error
}
