/**
 * @description
 * Core session models shared by the client-side packages: roles, the secure
 * storage key namespace and the credential pair persisted per role.
 */
package domain

import "fmt"

// Role identifies which credential namespace a session operates in.
type Role string

const (
	RoleNone    Role = ""
	RolePatient Role = "patient"
	RoleNurse   Role = "nurse"
)

// Roles lists every role that owns a credential pair, in scan priority order.
var Roles = []Role{RolePatient, RoleNurse}

// Valid reports whether r names a role with its own credentials.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleNurse
}

// ParseRole converts user input into a Role.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RolePatient, RoleNurse:
		return Role(raw), nil
	default:
		return RoleNone, fmt.Errorf("unknown role %q", raw)
	}
}

// Secure storage keys. Values are opaque token strings or JSON records.
const (
	KeyAccessPatient             = "accessPatient"
	KeyRefreshPatient            = "refreshPatient"
	KeyAccessNurse               = "accessNurse"
	KeyRefreshNurse              = "refreshNurse"
	KeyBiometricPreferences      = "biometricPreferences"
	KeyBiometricFailedAttempts   = "biometricFailedAttempts"
	KeyBiometricLockoutTimestamp = "biometricLockoutTimestamp"
)

// CredentialKeys are the four token keys across both roles.
var CredentialKeys = []string{KeyAccessPatient, KeyRefreshPatient, KeyAccessNurse, KeyRefreshNurse}

// AccessKey returns the storage key holding the role's access token.
func AccessKey(r Role) string {
	if r == RoleNurse {
		return KeyAccessNurse
	}
	return KeyAccessPatient
}

// RefreshKey returns the storage key holding the role's refresh token.
func RefreshKey(r Role) string {
	if r == RoleNurse {
		return KeyRefreshNurse
	}
	return KeyRefreshPatient
}

// CredentialPair is the access/refresh token pair stored for one role.
type CredentialPair struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (p CredentialPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// TokenResponse is the payload returned by the login and refresh endpoints.
// Refresh is only set by the refresh endpoint when the token was rotated.
type TokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// RefreshRequest is the body sent to the refresh and logout endpoints.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// LoginRequest is the body sent to the role-specific login endpoints.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
