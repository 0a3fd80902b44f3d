package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/session"
)

const (
	logoutPath         = "/users/logout/"
	deleteAccountPath  = "/users/delete-account/"
	changePasswordPath = "/users/change-password/"
	userSettingsPath   = "/users/user-settings/"
)

// Login signs in manually, stores the issued pair under the role's keys and
// enters the app. Patients are then offered biometric login once.
func (c *Controller) Login(ctx context.Context, role domain.Role, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	tokens, err := c.auth.Login(ctx, role, username, password)
	if err != nil {
		return err
	}
	if err := c.vault.SaveLogin(ctx, role, tokens.Access, tokens.Refresh); err != nil {
		return err
	}
	if err := c.session.Login(role); err != nil {
		return err
	}
	c.navigator.EnterApp(role)

	if role == domain.RolePatient && c.prompter != nil {
		if _, err := c.gate.OfferSetup(ctx, role, c.prompter); err != nil {
			c.logger.Warn("biometric setup offer failed", "error", err)
		}
	}
	return nil
}

// Logout tells the backend to revoke the refresh token, then clears the
// role's credentials and returns to login whatever the backend answered.
func (c *Controller) Logout(ctx context.Context) error {
	role := c.session.Role()

	var remoteErr error
	if role.Valid() {
		refresh, err := c.vault.RefreshToken(ctx, role)
		if err != nil {
			c.logger.Warn("failed to read refresh token for logout", "error", err)
		}
		if refresh != "" {
			remoteErr = c.api.SendJSON(ctx, http.MethodPost, logoutPath, domain.RefreshRequest{Refresh: refresh}, nil)
			if remoteErr != nil {
				c.logger.Warn("backend logout failed", "role", string(role), "error", remoteErr)
			}
		}
	}

	if err := c.vault.ClearRole(context.WithoutCancel(ctx), role); err != nil {
		c.logger.Error("failed to clear credentials on logout", "role", string(role), "error", err)
	}
	c.session.Logout()

	// A forced logout inside the request client already reset navigation.
	if errors.Is(remoteErr, domain.ErrSessionExpired) || errors.Is(remoteErr, domain.ErrAuthRequired) {
		return nil
	}
	c.navigator.ResetToLogin(session.NoticeSignedOut)
	return nil
}

// SwitchRole moves the session to another role that already has stored credentials.
func (c *Controller) SwitchRole(ctx context.Context, role domain.Role) error {
	pair, err := c.vault.Pair(ctx, role)
	if err != nil {
		return err
	}
	if !pair.Complete() {
		return &domain.AuthRequiredError{Role: role}
	}
	if err := c.session.SwitchRole(role); err != nil {
		return err
	}
	c.navigator.EnterApp(role)
	return nil
}

// RequestPasswordReset asks the backend to email a reset link.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("a valid email address is required")
	}
	return c.auth.RequestPasswordReset(ctx, email)
}

// UserSettings loads the signed-in user's profile.
func (c *Controller) UserSettings(ctx context.Context) (*domain.UserSettings, error) {
	var settings domain.UserSettings
	if err := c.api.SendJSON(ctx, http.MethodGet, userSettingsPath, nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// ChangePassword updates the signed-in user's password.
func (c *Controller) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if newPassword == "" || newPassword == oldPassword {
		return fmt.Errorf("new password must be set and differ from the current one")
	}
	err := c.api.SendJSON(ctx, http.MethodPost, changePasswordPath, domain.ChangePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	}, nil)
	var failure *domain.RequestFailure
	if errors.As(err, &failure) && failure.Status == http.StatusForbidden {
		return domain.ErrIncorrectPassword
	}
	return err
}

// DeleteAccount permanently deletes the signed-in account after confirming
// the password, then wipes the role's credentials and biometric state.
func (c *Controller) DeleteAccount(ctx context.Context, password string) error {
	role := c.session.Role()

	err := c.api.SendJSON(ctx, http.MethodPost, deleteAccountPath, domain.DeleteAccountRequest{Password: password}, nil)
	var failure *domain.RequestFailure
	if errors.As(err, &failure) && failure.Status == http.StatusForbidden {
		return domain.ErrIncorrectPassword
	}
	if err != nil {
		return err
	}

	cleanupCtx := context.WithoutCancel(ctx)
	if err := c.vault.ClearRole(cleanupCtx, role); err != nil {
		c.logger.Error("failed to clear credentials after account deletion", "error", err)
	}
	if role == domain.RolePatient {
		if err := c.gate.Disable(cleanupCtx); err != nil {
			c.logger.Error("failed to clear biometric state after account deletion", "error", err)
		}
	}
	c.session.Logout()
	c.navigator.ResetToLogin(session.NoticeNone)
	c.logger.Info("account deleted", "role", string(role))
	return nil
}

// EnableBiometrics turns biometric login on from settings. Patients only.
func (c *Controller) EnableBiometrics(ctx context.Context) error {
	if c.session.Role() != domain.RolePatient {
		return fmt.Errorf("biometric login is only available to patients")
	}
	return c.gate.Enable(ctx)
}

// DisableBiometrics turns biometric login off.
func (c *Controller) DisableBiometrics(ctx context.Context) error {
	return c.gate.Disable(ctx)
}

// BiometricState reports the current gate state.
func (c *Controller) BiometricState(ctx context.Context) (domain.BiometricState, error) {
	return c.gate.State(ctx)
}
