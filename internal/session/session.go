/**
 * @description
 * The explicit session object owned by the root controller. It holds the
 * process-wide current role and only changes it through named transitions,
 * so the request client, the biometric gate and the bootstrap flow all share
 * one handle instead of reading ambient state.
 */
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

// RoleScanner detects which role has stored credentials at startup.
type RoleScanner interface {
	ScanRole(ctx context.Context) (domain.Role, error)
}

// Session tracks the current role.
type Session struct {
	mu     sync.RWMutex
	role   domain.Role
	ready  chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// New creates a session with no role that is not yet ready.
func New(logger *slog.Logger) *Session {
	return &Session{
		ready:  make(chan struct{}),
		logger: logger,
	}
}

// Scan initializes the role from stored credentials and marks the session
// ready. Only the first call has any effect. The session becomes ready even
// when the scan fails, with no role selected.
func (s *Session) Scan(ctx context.Context, scanner RoleScanner) error {
	var scanErr error
	s.once.Do(func() {
		defer close(s.ready)
		role, err := scanner.ScanRole(ctx)
		if err != nil {
			scanErr = fmt.Errorf("failed to scan stored credentials: %w", err)
			s.logger.Warn("credential scan failed", "error", err)
			return
		}
		s.mu.Lock()
		s.role = role
		s.mu.Unlock()
		s.logger.Info("credential scan complete", "role", string(role))
	})
	return scanErr
}

// WaitReady blocks until Scan has completed or ctx is done.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Role returns the current role.
func (s *Session) Role() domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Login enters role after a successful manual login or session resume.
func (s *Session) Login(role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("cannot log in as role %q", role)
	}
	s.mu.Lock()
	prev := s.role
	s.role = role
	s.mu.Unlock()
	s.logger.Info("session logged in", "role", string(role), "previous_role", string(prev))
	return nil
}

// Logout clears the current role and returns the role that was active.
func (s *Session) Logout() domain.Role {
	s.mu.Lock()
	prev := s.role
	s.role = domain.RoleNone
	s.mu.Unlock()
	if prev != domain.RoleNone {
		s.logger.Info("session logged out", "role", string(prev))
	}
	return prev
}

// SwitchRole moves an active session to another role.
func (s *Session) SwitchRole(role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("cannot switch to role %q", role)
	}
	s.mu.Lock()
	prev := s.role
	s.role = role
	s.mu.Unlock()
	s.logger.Info("session role switched", "from", string(prev), "to", string(role))
	return nil
}
