package app

import (
	"context"
	"fmt"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/session"
)

// Outcome is where the bootstrap flow settled.
type Outcome struct {
	Screen session.Screen
	Notice session.Notice
	// Reason is a short machine-readable explanation for logs and tests.
	Reason string
}

// Bootstrap decides at cold start whether to resume the patient session or
// show the login screen. It never fails: every error, and any panic, ends on
// the login screen with the patient credentials cleared.
func (c *Controller) Bootstrap(ctx context.Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = c.failBootstrap(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := c.session.WaitReady(ctx); err != nil {
		return c.failBootstrap(ctx, err)
	}

	refresh, err := c.vault.RefreshToken(ctx, domain.RolePatient)
	if err != nil {
		return c.failBootstrap(ctx, err)
	}
	// Nurses always log in manually.
	if refresh == "" {
		return c.showLogin(session.NoticeNone, "no_patient_session")
	}

	should, err := c.gate.ShouldAttempt(ctx, domain.RolePatient)
	if err != nil {
		return c.failBootstrap(ctx, err)
	}
	if should {
		res, err := c.gate.Authenticate(ctx)
		if err != nil {
			return c.failBootstrap(ctx, err)
		}
		if !res.Success {
			switch res.Reason {
			case domain.ReasonLockoutTriggered:
				return c.showLogin(session.NoticeSecurityLockout, res.Reason)
			case domain.ReasonLockedOut:
				return c.showLogin(session.NoticeLockedOut, res.Reason)
			default:
				// Cancel, fallback and hardware failures keep the stored tokens.
				return c.showLogin(session.NoticeNone, res.Reason)
			}
		}
	}

	return c.exchange(ctx, refresh)
}

func (c *Controller) exchange(ctx context.Context, refresh string) Outcome {
	refreshCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	tokens, err := c.auth.Refresh(refreshCtx, refresh)
	if err != nil {
		c.logger.Warn("session resume refresh failed", "error", err)
		if clearErr := c.vault.ClearRole(context.WithoutCancel(ctx), domain.RolePatient); clearErr != nil {
			c.logger.Error("failed to clear patient credentials", "error", clearErr)
		}
		return c.showLogin(session.NoticeNone, "refresh_failed")
	}

	if err := c.vault.SaveRefreshed(ctx, domain.RolePatient, *tokens); err != nil {
		return c.failBootstrap(ctx, err)
	}
	if err := c.session.Login(domain.RolePatient); err != nil {
		return c.failBootstrap(ctx, err)
	}
	c.navigator.EnterApp(domain.RolePatient)
	c.logger.Info("patient session resumed", "rotated", tokens.Refresh != "")
	return Outcome{Screen: session.ScreenApp, Reason: "resumed"}
}

func (c *Controller) showLogin(notice session.Notice, reason string) Outcome {
	c.session.Logout()
	c.navigator.ResetToLogin(notice)
	c.logger.Info("bootstrap landed on login", "reason", reason)
	return Outcome{Screen: session.ScreenLogin, Notice: notice, Reason: reason}
}

func (c *Controller) failBootstrap(ctx context.Context, err error) Outcome {
	c.logger.Error("bootstrap failed", "error", err)
	if clearErr := c.vault.ClearRole(context.WithoutCancel(ctx), domain.RolePatient); clearErr != nil {
		c.logger.Error("failed to clear patient credentials", "error", clearErr)
	}
	return c.showLogin(session.NoticeNone, "error")
}
