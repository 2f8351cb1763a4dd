package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/repository"
)

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	clock    func() time.Time

	decrementOK  bool
	decrementErr error
	resetCount   int64
	costCalls    []costCall
}

type costCall struct {
	accountID string
	month     string
	amount    float64
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts:    make(map[string]*domain.Account),
		clock:       func() time.Time { return time.Now().UTC() },
		decrementOK: true,
	}
}

func (f *fakeAccountRepo) put(account domain.Account) *domain.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	copied := account
	f.accounts[account.ID] = &copied
	return &copied
}

func (f *fakeAccountRepo) Create(_ context.Context, account domain.Account) (string, error) {
	stored := f.put(account)
	return stored.ID, nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountRepo) GetTrialByFingerprint(_ context.Context, fingerprint string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Type == domain.AccountTypeTrialUnregistered &&
			account.DeviceFingerprint != nil && *account.DeviceFingerprint == fingerprint {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.LastLogin = &at
	return nil
}

func (f *fakeAccountRepo) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = &passwordHash
	return nil
}

func (f *fakeAccountRepo) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if account.EmailVerifiedAt == nil {
		account.EmailVerifiedAt = &at
	}
	return nil
}

func (f *fakeAccountRepo) DecrementMessages(_ context.Context, id string) (bool, error) {
	if f.decrementErr != nil {
		return false, f.decrementErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return false, nil
	}
	if !f.decrementOK {
		return false, nil
	}
	if account.Type.Unlimited() || account.TrialMessagesRemaining == nil || *account.TrialMessagesRemaining <= 0 {
		return false, nil
	}
	remaining := *account.TrialMessagesRemaining - 1
	account.TrialMessagesRemaining = &remaining
	return true, nil
}

func (f *fakeAccountRepo) ResetIndividualAllowance(_ context.Context, id string, interval time.Duration, allowance int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return false, nil
	}
	if account.Type != domain.AccountTypeIndividual || account.SubscriptionStartedAt == nil {
		return false, nil
	}
	if account.TrialMessagesRemaining != nil {
		reference := account.SubscriptionStartedAt
		if account.UpdatedAt != nil {
			reference = account.UpdatedAt
		}
		if *account.TrialMessagesRemaining != 0 || f.clock().Sub(*reference) < interval {
			return false, nil
		}
	}
	topped := allowance
	account.TrialMessagesRemaining = &topped
	now := f.clock()
	account.UpdatedAt = &now
	return true, nil
}

func (f *fakeAccountRepo) ResetIndividualAllowances(_ context.Context, _ time.Duration, _ int) (int64, error) {
	return f.resetCount, nil
}

func (f *fakeAccountRepo) AddMonthlyCost(_ context.Context, id string, month string, amountUSD float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	f.costCalls = append(f.costCalls, costCall{accountID: id, month: month, amount: amountUSD})
	return nil
}

func (f *fakeAccountRepo) ApplySubscription(_ context.Context, change port.SubscriptionChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[change.AccountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.Type = change.Plan
	period := change.BillingPeriod
	account.BillingPeriod = &period
	status := domain.SubscriptionStatusActive
	account.SubscriptionStatus = &status
	started := change.StartedAt
	account.SubscriptionStartedAt = &started
	expires := change.ExpiresAt
	account.PremiumExpiresAt = &expires
	next := change.NextBillingDate
	account.NextBillingDate = &next
	if change.TeamID != nil {
		account.TeamID = change.TeamID
	}
	switch change.Plan {
	case domain.AccountTypeIndividual:
		n := 20
		account.TrialMessagesRemaining = &n
	case domain.AccountTypeProfessional, domain.AccountTypeTeam:
		account.TrialMessagesRemaining = nil
	}
	return nil
}

func (f *fakeAccountRepo) CancelSubscription(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PremiumExpiresAt = account.NextBillingDate
	status := domain.SubscriptionStatusCancelled
	account.SubscriptionStatus = &status
	account.BillingPeriod = nil
	account.SubscriptionStartedAt = nil
	account.NextBillingDate = nil
	return nil
}

func (f *fakeAccountRepo) ApplyBillingSync(_ context.Context, sync port.BillingSync) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[sync.AccountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.Type = sync.AccountType
	account.BillingPeriod = sync.BillingPeriod
	status := sync.Status
	account.SubscriptionStatus = &status
	account.PremiumExpiresAt = sync.PremiumExpiresAt
	account.NextBillingDate = sync.NextBillingDate
	account.TrialMessagesRemaining = sync.Messages
	if sync.Platform != nil {
		account.Platform = sync.Platform
	}
	return nil
}

func (f *fakeAccountRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok || account.Status != domain.AccountStatusActive {
		return repository.ErrNotFound
	}
	account.Status = domain.AccountStatusDeleted
	account.DeletedAt = &at
	return nil
}

func (f *fakeAccountRepo) Restore(_ context.Context, id string, grace time.Duration) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok || account.Status != domain.AccountStatusDeleted || account.DeletedAt == nil {
		return nil, repository.ErrNotFound
	}
	if f.clock().After(account.DeletedAt.Add(grace)) {
		return nil, repository.ErrNotFound
	}
	account.Status = domain.AccountStatusActive
	account.DeletedAt = nil
	copied := *account
	return &copied, nil
}

func (f *fakeAccountRepo) ListExpiredDeleted(_ context.Context, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0)
	for id, account := range f.accounts {
		if account.Status == domain.AccountStatusDeleted && account.DeletedAt != nil && account.DeletedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeAccountRepo) Purge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok || account.Status != domain.AccountStatusDeleted {
		return repository.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeAccountRepo) CountOtherActiveTeamMembers(_ context.Context, teamID, excludeID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for id, account := range f.accounts {
		if id == excludeID {
			continue
		}
		if account.TeamID != nil && *account.TeamID == teamID && account.Status == domain.AccountStatusActive {
			count++
		}
	}
	return count, nil
}

var _ port.AccountRepository = (*fakeAccountRepo)(nil)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	failTouchByHash error
	failRewrite     error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (f *fakeSessionRepo) put(session domain.Session) *domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	copied := session
	f.sessions[session.ID] = &copied
	return &copied
}

func (f *fakeSessionRepo) activeCount(at time.Time) int {
	count := 0
	for _, session := range f.sessions {
		if session.IsActive(at) {
			count++
		}
	}
	return count
}

func (f *fakeSessionRepo) Insert(_ context.Context, session domain.Session) (string, error) {
	stored := f.put(session)
	return stored.ID, nil
}

func (f *fakeSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.TokenHash == tokenHash {
			copied := *session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSessionRepo) Touch(_ context.Context, sessionID string, ip *string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.Touch(at, ip, nil)
	return nil
}

func (f *fakeSessionRepo) TouchByTokenHash(_ context.Context, tokenHash string, at time.Time) (string, error) {
	if f.failTouchByHash != nil {
		return "", f.failTouchByHash
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.TokenHash == tokenHash && session.IsActive(at) {
			session.LastSeenAt = at
			return session.ID, nil
		}
	}
	return "", repository.ErrNotFound
}

func (f *fakeSessionRepo) RewriteTokenByDevice(_ context.Context, accountID, deviceID, tokenHash string, expiresAt, at time.Time) (string, error) {
	if f.failRewrite != nil {
		return "", f.failRewrite
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.AccountID == accountID && session.DeviceID != nil && *session.DeviceID == deviceID && session.IsActive(at) {
			session.TokenHash = tokenHash
			session.ExpiresAt = expiresAt
			session.LastSeenAt = at
			return session.ID, nil
		}
	}
	return "", repository.ErrNotFound
}

func (f *fakeSessionRepo) RewriteTokenMostRecent(_ context.Context, accountID, tokenHash string, expiresAt, at time.Time) (string, error) {
	if f.failRewrite != nil {
		return "", f.failRewrite
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.Session
	for _, session := range f.sessions {
		if session.AccountID != accountID || !session.IsActive(at) {
			continue
		}
		if best == nil || session.LastSeenAt.After(best.LastSeenAt) {
			best = session
		}
	}
	if best == nil {
		return "", repository.ErrNotFound
	}
	best.TokenHash = tokenHash
	best.ExpiresAt = expiresAt
	best.LastSeenAt = at
	return best.ID, nil
}

func (f *fakeSessionRepo) CountActive(_ context.Context, accountID string, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.AccountID == accountID && session.IsActive(at) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepo) RevokeOldest(_ context.Context, accountID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *domain.Session
	for _, session := range f.sessions {
		if session.AccountID != accountID || !session.IsActive(at) {
			continue
		}
		if oldest == nil || session.LastSeenAt.Before(oldest.LastSeenAt) {
			oldest = session
		}
	}
	if oldest != nil {
		oldest.Revoked = true
	}
	return nil
}

func (f *fakeSessionRepo) Revoke(_ context.Context, sessionID, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok || session.AccountID != accountID || session.Revoked {
		return false, nil
	}
	session.Revoked = true
	return true, nil
}

func (f *fakeSessionRepo) RevokeAllForAccount(_ context.Context, accountID string, exceptTokenHash *string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	revoked := 0
	for _, session := range f.sessions {
		if session.AccountID != accountID || session.Revoked {
			continue
		}
		if exceptTokenHash != nil && session.TokenHash == *exceptTokenHash {
			continue
		}
		session.Revoked = true
		revoked++
	}
	return revoked, nil
}

func (f *fakeSessionRepo) ListActiveByAccount(_ context.Context, accountID string, at time.Time) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions := make([]domain.Session, 0)
	for _, session := range f.sessions {
		if session.AccountID == accountID && session.IsActive(at) {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

func (f *fakeSessionRepo) DeleteStaleForAccount(_ context.Context, accountID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, session := range f.sessions {
		if session.AccountID == accountID && session.ExpiresAt.Before(at) {
			delete(f.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeSessionRepo) DeleteStale(_ context.Context, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, session := range f.sessions {
		if session.ExpiresAt.Before(at) {
			delete(f.sessions, id)
			removed++
		}
	}
	return removed, nil
}

var _ port.SessionRepository = (*fakeSessionRepo)(nil)

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.AuthenticationToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.AuthenticationToken)}
}

func (f *fakeTokenRepo) Insert(_ context.Context, token domain.AuthenticationToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	copied := token
	f.tokens[token.TokenHash] = &copied
	return nil
}

func (f *fakeTokenRepo) Consume(_ context.Context, tokenHash string, purpose domain.TokenPurpose, at time.Time) (*domain.AuthenticationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenHash]
	if !ok || token.Purpose != purpose || !token.Usable(at) {
		return nil, repository.ErrNotFound
	}
	token.UsedAt = &at
	copied := *token
	return &copied, nil
}

func (f *fakeTokenRepo) DeleteExpired(_ context.Context, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for hash, token := range f.tokens {
		if token.ExpiresAt.Before(at) {
			delete(f.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

var _ port.TokenRepository = (*fakeTokenRepo)(nil)

type fakeThrottleRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeThrottleRepo() *fakeThrottleRepo {
	return &fakeThrottleRepo{counts: make(map[string]int)}
}

func (f *fakeThrottleRepo) CountForIP(_ context.Context, ip string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[ip], nil
}

func (f *fakeThrottleRepo) RecordTrial(_ context.Context, ip string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[ip]++
	return nil
}

var _ port.TrialThrottleRepository = (*fakeThrottleRepo)(nil)

type publishedEvent struct {
	kind    string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) record(kind string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{kind: kind, payload: payload})
}

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.events))
	for _, event := range f.events {
		kinds = append(kinds, event.kind)
	}
	return kinds
}

func (f *fakePublisher) PublishTrialStarted(_ context.Context, event domain.TrialStartedEvent) error {
	f.record("trial.started", event)
	return nil
}

func (f *fakePublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	f.record("account.registered", event)
	return nil
}

func (f *fakePublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	f.record("account.deleted", event)
	return nil
}

func (f *fakePublisher) PublishAccountRestored(_ context.Context, event domain.AccountRestoredEvent) error {
	f.record("account.restored", event)
	return nil
}

func (f *fakePublisher) PublishAccountPurged(_ context.Context, event domain.AccountPurgedEvent) error {
	f.record("account.purged", event)
	return nil
}

func (f *fakePublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	f.record("session.revoked", event)
	return nil
}

func (f *fakePublisher) PublishSubscriptionSynced(_ context.Context, event domain.SubscriptionSyncedEvent) error {
	f.record("subscription.synced", event)
	return nil
}

var _ port.EventPublisher = (*fakePublisher)(nil)

type fakeGateway struct {
	state    *domain.SubscriberState
	err      error
	linked   []string
	restores []bool
}

func (f *fakeGateway) FetchSubscriberState(_ context.Context, _ string) (*domain.SubscriberState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func (f *fakeGateway) LinkPurchase(_ context.Context, _, receiptToken string, isRestore bool) error {
	f.linked = append(f.linked, receiptToken)
	f.restores = append(f.restores, isRestore)
	return nil
}

var _ port.SubscriberGateway = (*fakeGateway)(nil)

type fakeEntitlementCache struct {
	mu        sync.Mutex
	snapshots map[string]domain.EntitlementSnapshot
	getErr    error
	sets      int
	deletes   int
}

func newFakeEntitlementCache() *fakeEntitlementCache {
	return &fakeEntitlementCache{snapshots: make(map[string]domain.EntitlementSnapshot)}
}

func (f *fakeEntitlementCache) Get(_ context.Context, accountID string) (*domain.EntitlementSnapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.snapshots[accountID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := snapshot
	return &copied, nil
}

func (f *fakeEntitlementCache) Set(_ context.Context, snapshot domain.EntitlementSnapshot, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snapshot.AccountID] = snapshot
	f.sets++
	return nil
}

func (f *fakeEntitlementCache) Invalidate(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, accountID)
	f.deletes++
	return nil
}

var _ port.EntitlementCache = (*fakeEntitlementCache)(nil)
