package domain

import "time"

// TokenPurpose enumerates supported single-use authentication token flows.
type TokenPurpose string

const (
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
)

// AuthenticationToken represents a single-use token stored as a hash.
type AuthenticationToken struct {
	ID        string
	AccountID string
	TokenHash string
	Purpose   TokenPurpose
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the token can still be consumed at the supplied moment.
func (t AuthenticationToken) Usable(at time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(at)
}

// TrialIPRecord tracks how many anonymous trials originated from one address.
type TrialIPRecord struct {
	IPAddress    string
	TrialCount   int
	FirstTrialAt time.Time
	LastTrialAt  time.Time
}
