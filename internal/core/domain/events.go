package domain

import "time"

// TrialStartedEvent represents the payload for norma.trial.started messages.
type TrialStartedEvent struct {
	EventID           string
	AccountID         string
	DeviceFingerprint string
	IPAddress         string
	MessagesGranted   int
	StartedAt         time.Time
	Metadata          map[string]any
}

// AccountRegisteredEvent represents the payload for norma.account.registered messages.
type AccountRegisteredEvent struct {
	EventID            string
	AccountID          string
	Email              string
	AccountType        string
	RegisteredAt       time.Time
	TrialMerged        bool
	MessagesInherited  int
	RegistrationMethod string
	Metadata           map[string]any
}

// AccountDeletedEvent represents the payload for norma.account.deleted messages.
type AccountDeletedEvent struct {
	EventID         string
	AccountID       string
	DeletedAt       time.Time
	GracePeriodEnds time.Time
	SessionsRevoked int
	Metadata        map[string]any
}

// AccountRestoredEvent represents the payload for norma.account.restored messages.
type AccountRestoredEvent struct {
	EventID    string
	AccountID  string
	RestoredAt time.Time
	// AutoRestore is true when the account was revived by an authenticated
	// request inside the grace window rather than an explicit restore call.
	AutoRestore bool
	Metadata    map[string]any
}

// AccountPurgedEvent represents the payload for norma.account.purged messages.
type AccountPurgedEvent struct {
	EventID   string
	AccountID string
	PurgedAt  time.Time
	Metadata  map[string]any
}

// SessionRevokedEvent represents the payload for norma.session.revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	AccountID string
	RevokedAt time.Time
	Reason    string
	Metadata  map[string]any
}

// SubscriptionSyncedEvent represents the payload for norma.subscription.synced messages.
type SubscriptionSyncedEvent struct {
	EventID       string
	AccountID     string
	AccountType   string
	Status        string
	ExpiresAt     *time.Time
	Platform      *string
	InGracePeriod bool
	SyncedAt      time.Time
	Metadata      map[string]any
}
