package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/infra/logger"
	"github.com/nklact/normaai/internal/repository"
)

const (
	defaultTrialMessages = 5
	defaultTrialIPLimit  = 3
)

var (
	// ErrInvalidFingerprint indicates the device fingerprint is malformed.
	ErrInvalidFingerprint = errors.New("invalid device fingerprint")
	// ErrTrialLimitReached indicates the source address has exhausted its trials.
	ErrTrialLimitReached = errors.New("trial limit reached for this network")
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// TrialService provisions anonymous device trials and throttles trial farming
// by source address.
type TrialService struct {
	accounts  port.AccountRepository
	throttle  port.TrialThrottleRepository
	events    port.EventPublisher
	logger    *zap.Logger
	messages  int
	ipLimit   int
	now       func() time.Time
}

// NewTrialService constructs a TrialService.
func NewTrialService(accounts port.AccountRepository, throttle port.TrialThrottleRepository, events port.EventPublisher, log *zap.Logger, messages, ipLimit int) *TrialService {
	if log == nil {
		log = zap.NewNop()
	}
	if messages <= 0 {
		messages = defaultTrialMessages
	}
	if ipLimit <= 0 {
		ipLimit = defaultTrialIPLimit
	}
	service := &TrialService{
		accounts: accounts,
		throttle: throttle,
		events:   events,
		logger:   log,
		messages: messages,
		ipLimit:  ipLimit,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TrialService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// StartTrial provisions an anonymous trial account for the device. Repeat
// calls with the same fingerprint return the existing account, so a client
// retrying the call can never mint extra allowances.
func (s *TrialService) StartTrial(ctx context.Context, fingerprint, ip string) (*domain.Account, error) {
	fingerprint = strings.ToLower(strings.TrimSpace(fingerprint))
	if !fingerprintPattern.MatchString(fingerprint) {
		return nil, ErrInvalidFingerprint
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, fmt.Errorf("client address is required")
	}

	existing, err := s.accounts.GetTrialByFingerprint(ctx, fingerprint)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup trial by fingerprint: %w", err)
	}

	count, err := s.throttle.CountForIP(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("count trials for address: %w", err)
	}
	if count >= s.ipLimit {
		return nil, ErrTrialLimitReached
	}

	now := s.now()
	messages := s.messages
	account := domain.Account{
		Email:                  placeholderTrialEmail(fingerprint),
		Type:                   domain.AccountTypeTrialUnregistered,
		Status:                 domain.AccountStatusActive,
		TrialMessagesRemaining: &messages,
		DeviceFingerprint:      &fingerprint,
		TrialStartedAt:         &now,
	}

	id, err := s.accounts.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("create trial account: %w", err)
	}
	account.ID = id
	account.CreatedAt = now

	if err := s.throttle.RecordTrial(ctx, ip, now); err != nil {
		s.logger.Warn("record trial address failed",
			zap.String("ip", logger.MaskIP(ip)),
			zap.Error(err),
		)
	}

	if s.events != nil {
		event := domain.TrialStartedEvent{
			EventID:           uuid.NewString(),
			AccountID:         id,
			DeviceFingerprint: fingerprint,
			IPAddress:         logger.MaskIP(ip),
			MessagesGranted:   messages,
			StartedAt:         now,
		}
		if err := s.events.PublishTrialStarted(ctx, event); err != nil {
			s.logger.Warn("publish trial started event failed",
				zap.String("account_id", id),
				zap.Error(err),
			)
		}
	}

	return &account, nil
}

// TrialStatus returns the trial account bound to the fingerprint.
func (s *TrialService) TrialStatus(ctx context.Context, fingerprint string) (*domain.Account, error) {
	fingerprint = strings.ToLower(strings.TrimSpace(fingerprint))
	if !fingerprintPattern.MatchString(fingerprint) {
		return nil, ErrInvalidFingerprint
	}

	account, err := s.accounts.GetTrialByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup trial by fingerprint: %w", err)
	}
	return account, nil
}

// Anonymous trials still need a unique value in the email column; the prefix
// makes them unmistakable in the data and trivially excluded from mailings.
func placeholderTrialEmail(fingerprint string) string {
	return fmt.Sprintf("unregistered_%s@trial.local", fingerprint[:8])
}
