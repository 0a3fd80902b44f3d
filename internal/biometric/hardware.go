package biometric

import "context"

// Type is a biometric modality reported by the device.
type Type int

const (
	TypeFingerprint Type = iota + 1
	TypeFacial
	TypeIris
)

// Label returns the user-facing name for the modality.
func (t Type) Label() string {
	switch t {
	case TypeFingerprint:
		return "Touch ID"
	case TypeFacial:
		return "Face ID"
	case TypeIris:
		return "Iris"
	default:
		return "Biometric"
	}
}

// Capabilities describes what the device can do.
type Capabilities struct {
	HasHardware   bool
	Enrolled      bool
	SecurityLevel int
	Types         []Type
}

// Available reports whether biometrics can be used at all.
func (c Capabilities) Available() bool {
	return c.HasHardware && c.Enrolled && c.SecurityLevel > 0
}

// Prompt configures the system biometric dialog.
type Prompt struct {
	Message       string
	CancelLabel   string
	FallbackLabel string
	// DisableDeviceFallback hides the device passcode option so the fallback
	// goes to the app's own username/password login.
	DisableDeviceFallback bool
}

// DefaultPrompt is shown when resuming a session.
var DefaultPrompt = Prompt{
	Message:               "Authenticate to access SurgiCalm",
	CancelLabel:           "Cancel",
	FallbackLabel:         "Use Password",
	DisableDeviceFallback: true,
}

// Hardware errors the gatekeeper treats specially. Anything else is a
// failed attempt.
const (
	ErrorUserCancel           = "UserCancel"
	ErrorUserFallback         = "UserFallback"
	ErrorAuthenticationFailed = "authentication_failed"
)

// HardwareResult is what the device prompt resolved to.
type HardwareResult struct {
	Success bool
	Error   string
}

// Hardware is the device biometric API. Each call is a single suspension
// point. A non-nil error means the prompt itself could not run.
type Hardware interface {
	Capabilities(ctx context.Context) (Capabilities, error)
	Authenticate(ctx context.Context, prompt Prompt) (HardwareResult, error)
}

// Unavailable is Hardware for devices without biometrics.
type Unavailable struct{}

func (Unavailable) Capabilities(ctx context.Context) (Capabilities, error) {
	return Capabilities{}, nil
}

func (Unavailable) Authenticate(ctx context.Context, prompt Prompt) (HardwareResult, error) {
	return HardwareResult{Error: "not_available"}, nil
}
