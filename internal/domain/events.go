package domain

import "time"

// Exchange and routing keys for session lifecycle events published by the dev backend.
const (
	SessionEventsExchange  = "session_events"
	RoutingLoggedIn        = "session.logged_in"
	RoutingLoggedOut       = "session.logged_out"
	RoutingTokenRefreshed  = "session.token_refreshed"
	RoutingAccountDeleted  = "account.deleted"
	RoutingPasswordReset   = "account.password_reset_requested"
	RoutingPasswordChanged = "account.password_changed"
)

// SessionEvent is the payload published for every session lifecycle change.
type SessionEvent struct {
	AccountID  string    `json:"account_id"`
	Role       Role      `json:"role,omitempty"`
	TokenID    string    `json:"token_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
