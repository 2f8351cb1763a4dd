package domain

import "time"

// EntitlementSnapshot is a cached view of what an account may do right now.
type EntitlementSnapshot struct {
	AccountID         string        `json:"account_id"`
	AccountType       AccountType   `json:"account_type"`
	Status            AccountStatus `json:"status"`
	Unlimited         bool          `json:"unlimited"`
	MessagesRemaining int           `json:"messages_remaining"`
	CanSend           bool          `json:"can_send"`
	PremiumExpiresAt  *time.Time    `json:"premium_expires_at,omitempty"`
	CheckedAt         time.Time     `json:"checked_at"`
}

// SnapshotEntitlement derives a snapshot from the account row at the supplied moment.
func SnapshotEntitlement(account Account, at time.Time) EntitlementSnapshot {
	return EntitlementSnapshot{
		AccountID:         account.ID,
		AccountType:       account.Type,
		Status:            account.Status,
		Unlimited:         account.Type.Unlimited() && !account.SubscriptionExpired(at),
		MessagesRemaining: account.MessagesRemaining(),
		CanSend:           account.CanSendMessage(at),
		PremiumExpiresAt:  account.PremiumExpiresAt,
		CheckedAt:         at,
	}
}
