/**
 * @description
 * The biometric gatekeeper mediates between stored credentials and the
 * device biometric hardware. Biometrics are opt-in and patient-only.
 * Consecutive failed attempts are counted in secure storage; reaching the
 * threshold wipes every stored credential pair and starts a cool-down that
 * is expired lazily the next time lockout status is read.
 *
 * @dependencies
 * - internal/store: SecureStore for the preference, counter and lockout records.
 * - internal/domain: storage keys, reasons and the preference record.
 */
package biometric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/store"
)

const (
	DefaultMaxAttempts   = 3
	DefaultLockoutWindow = 5 * time.Minute
)

// ErrNotAvailable is returned when enabling biometrics on a device without them.
var ErrNotAvailable = errors.New("biometric authentication is not available on this device")

// CredentialWiper removes every stored credential pair.
type CredentialWiper interface {
	ClearAll(ctx context.Context) error
}

// Prompter asks the user whether to turn biometric login on.
type Prompter interface {
	ConfirmBiometricSetup(ctx context.Context, typeLabel string) (bool, error)
}

// Config tunes the lockout policy. Zero values take the defaults.
type Config struct {
	MaxAttempts   int
	LockoutWindow time.Duration
	Now           func() time.Time
}

// Gatekeeper enforces the biometric opt-in and lockout policy.
type Gatekeeper struct {
	store       store.SecureStore
	wiper       CredentialWiper
	hardware    Hardware
	logger      *slog.Logger
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewGatekeeper creates a Gatekeeper.
func NewGatekeeper(s store.SecureStore, wiper CredentialWiper, hw Hardware, logger *slog.Logger, cfg Config) *Gatekeeper {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = DefaultLockoutWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gatekeeper{
		store:       s,
		wiper:       wiper,
		hardware:    hw,
		logger:      logger.With("component", "biometric_gatekeeper"),
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.LockoutWindow,
		now:         cfg.Now,
	}
}

// IsAvailable reports whether the device has enrolled, usable biometrics.
// A failing capability query counts as unavailable.
func (g *Gatekeeper) IsAvailable(ctx context.Context) bool {
	caps, err := g.hardware.Capabilities(ctx)
	if err != nil {
		g.logger.Warn("capability query failed", "error", err)
		return false
	}
	return caps.Available()
}

// SupportedTypes lists the labels of the modalities the device supports.
func (g *Gatekeeper) SupportedTypes(ctx context.Context) []string {
	caps, err := g.hardware.Capabilities(ctx)
	if err != nil {
		g.logger.Warn("capability query failed", "error", err)
		return nil
	}
	labels := make([]string, 0, len(caps.Types))
	for _, t := range caps.Types {
		labels = append(labels, t.Label())
	}
	return labels
}

// Preference returns the stored preference record, or nil when none exists.
// An unreadable record is treated as absent.
func (g *Gatekeeper) Preference(ctx context.Context) (*domain.BiometricPreference, error) {
	raw, ok, err := g.store.Get(ctx, domain.KeyBiometricPreferences)
	if err != nil {
		return nil, fmt.Errorf("failed to read biometric preference: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var pref domain.BiometricPreference
	if err := json.Unmarshal([]byte(raw), &pref); err != nil {
		g.logger.Warn("ignoring malformed biometric preference", "error", err)
		return nil, nil
	}
	return &pref, nil
}

// IsEnabled reports whether the patient opted in.
func (g *Gatekeeper) IsEnabled(ctx context.Context) (bool, error) {
	pref, err := g.Preference(ctx)
	if err != nil {
		return false, err
	}
	return pref != nil && pref.Enabled && pref.UserType == domain.RolePatient, nil
}

// FailedAttempts returns the persisted failure counter.
func (g *Gatekeeper) FailedAttempts(ctx context.Context) (int, error) {
	raw, ok, err := g.store.Get(ctx, domain.KeyBiometricFailedAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to read failed attempts: %w", err)
	}
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// IsLockedOut reports whether a lockout is active. An expired lockout is
// cleared here, together with the failure counter.
func (g *Gatekeeper) IsLockedOut(ctx context.Context) (bool, error) {
	raw, ok, err := g.store.Get(ctx, domain.KeyBiometricLockoutTimestamp)
	if err != nil {
		return false, fmt.Errorf("failed to read lockout record: %w", err)
	}
	if !ok || raw == "" {
		return false, nil
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err == nil && g.now().Sub(time.UnixMilli(ms)) < g.window {
		return true, nil
	}

	if err := g.clearLockout(ctx); err != nil {
		return false, err
	}
	g.logger.Info("biometric lockout expired")
	return false, nil
}

// State returns the gate state for the patient role.
func (g *Gatekeeper) State(ctx context.Context) (domain.BiometricState, error) {
	locked, err := g.IsLockedOut(ctx)
	if err != nil {
		return "", err
	}
	if locked {
		return domain.BiometricLockedOut, nil
	}
	enabled, err := g.IsEnabled(ctx)
	if err != nil {
		return "", err
	}
	if enabled {
		return domain.BiometricEnabled, nil
	}
	return domain.BiometricNotEnabled, nil
}

// ShouldAttempt reports whether a session resume for role should go through
// biometrics. Always false for nurses.
func (g *Gatekeeper) ShouldAttempt(ctx context.Context, role domain.Role) (bool, error) {
	if role != domain.RolePatient {
		return false, nil
	}
	enabled, err := g.IsEnabled(ctx)
	if err != nil || !enabled {
		return false, err
	}
	if !g.IsAvailable(ctx) {
		return false, nil
	}
	locked, err := g.IsLockedOut(ctx)
	if err != nil {
		return false, err
	}
	return !locked, nil
}

// Authenticate runs one gated biometric attempt. Policy outcomes are
// reported in the result; the error is reserved for storage failures and
// context cancellation.
func (g *Gatekeeper) Authenticate(ctx context.Context) (domain.BiometricResult, error) {
	locked, err := g.IsLockedOut(ctx)
	if err != nil {
		return domain.BiometricResult{}, err
	}
	if locked {
		return domain.BiometricResult{Reason: domain.ReasonLockedOut}, nil
	}

	pref, err := g.Preference(ctx)
	if err != nil {
		return domain.BiometricResult{}, err
	}
	if pref == nil || !pref.Enabled || pref.UserType != domain.RolePatient {
		return domain.BiometricResult{Reason: domain.ReasonNotEnabled}, nil
	}

	if !g.IsAvailable(ctx) {
		return domain.BiometricResult{Reason: domain.ReasonNotAvailable}, nil
	}

	res, hwErr := g.hardware.Authenticate(ctx, DefaultPrompt)
	if hwErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.BiometricResult{}, ctxErr
		}
		g.logger.Warn("biometric prompt failed", "error", hwErr)
		return g.recordFailure(ctx, domain.ReasonSystemError)
	}

	if res.Success {
		if err := g.clearLockout(ctx); err != nil {
			return domain.BiometricResult{}, err
		}
		g.logger.Info("biometric authentication succeeded")
		return domain.BiometricResult{Success: true, UserType: pref.UserType}, nil
	}

	switch res.Error {
	case ErrorUserCancel, ErrorUserFallback:
		return domain.BiometricResult{Reason: res.Error}, nil
	case "":
		return g.recordFailure(ctx, ErrorAuthenticationFailed)
	default:
		return g.recordFailure(ctx, res.Error)
	}
}

// recordFailure persists the attempt even after the caller is cancelled.
func (g *Gatekeeper) recordFailure(ctx context.Context, reason string) (domain.BiometricResult, error) {
	ctx = context.WithoutCancel(ctx)
	attempts, err := g.FailedAttempts(ctx)
	if err != nil {
		return domain.BiometricResult{}, err
	}
	attempts++

	if attempts >= g.maxAttempts {
		if err := g.lockout(ctx); err != nil {
			return domain.BiometricResult{}, err
		}
		return domain.BiometricResult{Reason: domain.ReasonLockoutTriggered}, nil
	}

	if err := g.store.Set(ctx, domain.KeyBiometricFailedAttempts, strconv.Itoa(attempts)); err != nil {
		return domain.BiometricResult{}, fmt.Errorf("failed to store failed attempts: %w", err)
	}
	g.logger.Warn("biometric attempt failed", "reason", reason, "attempts", attempts, "max_attempts", g.maxAttempts)
	return domain.BiometricResult{Reason: reason}, nil
}

// lockout wipes the credentials of both roles, not just the patient's. The
// lockout record is written even when the wipe fails; the wipe error is
// returned.
func (g *Gatekeeper) lockout(ctx context.Context) error {
	wipeErr := g.wiper.ClearAll(ctx)
	if wipeErr != nil {
		g.logger.Error("failed to wipe credentials during lockout", "error", wipeErr)
	}
	ts := strconv.FormatInt(g.now().UnixMilli(), 10)
	if err := g.store.Set(ctx, domain.KeyBiometricLockoutTimestamp, ts); err != nil {
		return fmt.Errorf("failed to store lockout record: %w", err)
	}
	if err := g.store.Delete(ctx, domain.KeyBiometricFailedAttempts); err != nil {
		return fmt.Errorf("failed to reset failed attempts: %w", err)
	}
	g.logger.Warn("biometric lockout triggered", "window", g.window.String())
	if wipeErr != nil {
		return fmt.Errorf("failed to wipe credentials during lockout: %w", wipeErr)
	}
	return nil
}

func (g *Gatekeeper) clearLockout(ctx context.Context) error {
	if err := g.store.Delete(ctx, domain.KeyBiometricLockoutTimestamp); err != nil {
		return fmt.Errorf("failed to clear lockout record: %w", err)
	}
	if err := g.store.Delete(ctx, domain.KeyBiometricFailedAttempts); err != nil {
		return fmt.Errorf("failed to clear failed attempts: %w", err)
	}
	return nil
}

// OfferSetup asks a freshly logged-in patient whether to enable biometrics.
// The question is asked at most once per device: the answer is recorded
// either way. Returns whether biometrics ended up enabled.
func (g *Gatekeeper) OfferSetup(ctx context.Context, role domain.Role, prompter Prompter) (bool, error) {
	if role != domain.RolePatient {
		return false, nil
	}
	caps, err := g.hardware.Capabilities(ctx)
	if err != nil || !caps.Available() {
		return false, nil
	}
	pref, err := g.Preference(ctx)
	if err != nil {
		return false, err
	}
	if pref != nil {
		return false, nil
	}

	label := TypeFingerprint.Label()
	if len(caps.Types) > 0 {
		label = caps.Types[0].Label()
	}
	accepted, err := prompter.ConfirmBiometricSetup(ctx, label)
	if err != nil {
		return false, fmt.Errorf("biometric setup prompt failed: %w", err)
	}
	if err := g.savePreference(ctx, accepted); err != nil {
		return false, err
	}
	g.logger.Info("biometric setup answered", "enabled", accepted)
	return accepted, nil
}

// Enable turns biometric login on from settings.
func (g *Gatekeeper) Enable(ctx context.Context) error {
	if !g.IsAvailable(ctx) {
		return ErrNotAvailable
	}
	return g.savePreference(ctx, true)
}

// Disable turns biometric login off and clears failure and lockout state.
func (g *Gatekeeper) Disable(ctx context.Context) error {
	if err := g.store.Delete(ctx, domain.KeyBiometricPreferences); err != nil {
		return fmt.Errorf("failed to delete biometric preference: %w", err)
	}
	if err := g.clearLockout(ctx); err != nil {
		return err
	}
	g.logger.Info("biometric login disabled")
	return nil
}

func (g *Gatekeeper) savePreference(ctx context.Context, enabled bool) error {
	pref := domain.BiometricPreference{
		Enabled:   enabled,
		UserType:  domain.RolePatient,
		SetupDate: g.now().UTC(),
		Version:   domain.BiometricPreferenceVersion,
	}
	raw, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to marshal biometric preference: %w", err)
	}
	if err := g.store.Set(ctx, domain.KeyBiometricPreferences, string(raw)); err != nil {
		return fmt.Errorf("failed to store biometric preference: %w", err)
	}
	return nil
}
