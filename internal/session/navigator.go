package session

import "github.com/matthew-kal/SC---FRONTEND/internal/domain"

// Screen is one of the two places the core can send the user.
type Screen string

const (
	ScreenLogin Screen = "Login"
	ScreenApp   Screen = "App"
)

// Notice is a one-time message shown when the user is sent back to login.
type Notice string

const (
	NoticeNone            Notice = ""
	NoticeSessionExpired  Notice = "Session expired, please log in again"
	NoticeSecurityLockout Notice = "Too many failed biometric attempts. Your saved login was removed for your security. Please log in with your username and password."
	NoticeLockedOut       Notice = "Biometric login is temporarily disabled. Please log in with your username and password."
	NoticeSignedOut       Notice = "You have been signed out."
)

// Navigator is the navigation layer's side channel into the core.
type Navigator interface {
	// ResetToLogin replaces the navigation stack with the login screen,
	// showing notice once when it is not empty.
	ResetToLogin(notice Notice)
	// EnterApp lands the user on the authenticated area for role.
	EnterApp(role domain.Role)
}
