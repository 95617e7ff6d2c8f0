package model

import "time"

// Link attempt states. Only awaiting_completion is active; every other state
// is terminal except exchanging, which is the short-lived claim taken while
// a public token exchange is in flight.
const (
	LinkAttemptAwaitingCompletion = "awaiting_completion"
	LinkAttemptExchanging         = "exchanging"
	LinkAttemptSynced             = "synced"
	LinkAttemptFailed             = "failed"
	LinkAttemptCancelled          = "cancelled"
)

// LinkAttempt is one row of the linking state machine. Used internally; the
// API never returns attempts.
type LinkAttempt struct {
	ID        string
	UserID    string
	State     string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinkSession is the client-facing start of a linking flow: the single-use
// session token and when it stops being valid.
type LinkSession struct {
	SessionToken string    `json:"sessionToken"`
	Expiry       time.Time `json:"expiry"`
}
