package domain

import "time"

// Session represents a persisted login session bound to a device and token hash.
// The raw access token is never stored; only its SHA-256 digest.
type Session struct {
	ID         string
	AccountID  string
	TokenHash  string
	DeviceID   *string
	DeviceName *string
	IPAddress  *string
	UserAgent  *string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// IsActive reports whether the session is still valid at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(at)
}

// Touch updates last-seen metadata for the session when activity occurs.
func (s *Session) Touch(at time.Time, ip, userAgent *string) {
	s.LastSeenAt = at
	if ip != nil {
		ipCopy := *ip
		s.IPAddress = &ipCopy
	}
	if userAgent != nil {
		uaCopy := *userAgent
		s.UserAgent = &uaCopy
	}
}

// DeviceInfo carries client-supplied device metadata attached to a session.
// DeviceID is a stable identifier per app installation that survives token
// refreshes, which is what lets a refresh rewrite the session in place
// instead of minting a new one.
type DeviceInfo struct {
	DeviceID   *string
	Name       *string
	OS         *string
	AppVersion *string
}
