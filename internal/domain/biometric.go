package domain

import "time"

// Biometric failure reasons. Hardware-specific codes pass through as-is.
const (
	ReasonLockedOut        = "LOCKED_OUT"
	ReasonNotEnabled       = "NOT_ENABLED"
	ReasonNotAvailable     = "NOT_AVAILABLE"
	ReasonLockoutTriggered = "LOCKOUT_TRIGGERED"
	ReasonSystemError      = "SYSTEM_ERROR"
	ReasonUserCancel       = "UserCancel"
	ReasonUserFallback     = "UserFallback"
)

// BiometricPreferenceVersion is written into every new preference record.
const BiometricPreferenceVersion = "1.0"

// BiometricPreference is the opt-in record persisted under KeyBiometricPreferences.
type BiometricPreference struct {
	Enabled   bool      `json:"enabled"`
	UserType  Role      `json:"userType"`
	SetupDate time.Time `json:"setupDate"`
	Version   string    `json:"version"`
}

// BiometricResult is the outcome of a gated biometric authentication.
type BiometricResult struct {
	Success  bool
	Reason   string
	UserType Role
}

// WipedCredentials reports whether the failure caused a credential wipe.
func (r BiometricResult) WipedCredentials() bool {
	return r.Reason == ReasonLockedOut || r.Reason == ReasonLockoutTriggered
}

// UserAborted reports whether the user cancelled or chose the password fallback.
func (r BiometricResult) UserAborted() bool {
	return r.Reason == ReasonUserCancel || r.Reason == ReasonUserFallback
}

// BiometricState is the per-device gate state for the patient role.
type BiometricState string

const (
	BiometricNotEnabled BiometricState = "NOT_ENABLED"
	BiometricEnabled    BiometricState = "ENABLED"
	BiometricLockedOut  BiometricState = "LOCKED_OUT"
)
