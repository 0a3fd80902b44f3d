package devbackend

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

func (s *Server) handleLogin(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.LoginRequest
		if !decodeJSON(r, &req) || strings.TrimSpace(req.Username) == "" || req.Password == "" {
			writeDetail(w, http.StatusBadRequest, "Username and password are required.")
			return
		}

		account, err := s.accounts.FindByUsername(r.Context(), role, strings.TrimSpace(req.Username))
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			s.logger.Error("login lookup failed", "role", string(role), "error", err)
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if account == nil || !account.CheckPassword(req.Password) {
			writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
			return
		}

		access, _, err := s.tokens.Issue(account, TokenTypeAccess)
		if err != nil {
			s.logger.Error("failed to issue access token", "error", err)
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		refresh, refreshClaims, err := s.tokens.Issue(account, TokenTypeRefresh)
		if err != nil {
			s.logger.Error("failed to issue refresh token", "error", err)
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		s.events.emit(r.Context(), domain.RoutingLoggedIn, account.ID, role, refreshClaims.ID)
		respondWithJSON(w, http.StatusOK, domain.TokenResponse{Access: access, Refresh: refresh})
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if !decodeJSON(r, &req) || req.Refresh == "" {
		writeDetail(w, http.StatusBadRequest, "This field is required.")
		return
	}

	claims, err := s.tokens.Parse(req.Refresh, TokenTypeRefresh)
	if err != nil || s.revocations.IsRevoked(claims.ID) {
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	account, err := s.accountFromClaims(r, claims)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	access, _, err := s.tokens.Issue(account, TokenTypeAccess)
	if err != nil {
		s.logger.Error("failed to issue access token", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	resp := domain.TokenResponse{Access: access}
	tokenID := claims.ID

	if s.rotate {
		refresh, refreshClaims, err := s.tokens.Issue(account, TokenTypeRefresh)
		if err != nil {
			s.logger.Error("failed to issue refresh token", "error", err)
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		s.revocations.Revoke(claims.ID, claims.ExpiresAt.Time)
		resp.Refresh = refresh
		tokenID = refreshClaims.ID
	}

	s.events.emit(r.Context(), domain.RoutingTokenRefreshed, account.ID, account.Role, tokenID)
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var req domain.RefreshRequest
	if !decodeJSON(r, &req) || req.Refresh == "" {
		writeDetail(w, http.StatusBadRequest, "Refresh token is required.")
		return
	}
	claims, err := s.tokens.Parse(req.Refresh, TokenTypeRefresh)
	if err != nil || claims.Subject != strconv.FormatInt(account.ID, 10) {
		writeDetail(w, http.StatusBadRequest, "Token is invalid or expired")
		return
	}

	s.revocations.Revoke(claims.ID, claims.ExpiresAt.Time)
	s.events.emit(r.Context(), domain.RoutingLoggedOut, account.ID, account.Role, claims.ID)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordResetRequest
	email := ""
	if decodeJSON(r, &req) {
		email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if !strings.Contains(email, "@") {
		writeDetail(w, http.StatusBadRequest, "A valid email address is required.")
		return
	}

	allowed, retryAfter, err := s.limiter.Allow(r.Context(), "password_reset", email)
	if err != nil {
		s.logger.Warn("password reset limiter unavailable", "error", err)
	} else if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		writeDetail(w, http.StatusTooManyRequests, "Too many password reset requests. Try again later.")
		return
	}

	account, err := s.accounts.FindByEmail(r.Context(), email)
	if err == nil {
		s.logger.Info("password reset requested", "account_id", account.ID)
		s.events.emit(r.Context(), domain.RoutingPasswordReset, account.ID, account.Role, "")
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for this email, a reset link has been sent.",
	})
}

func (s *Server) accountFromClaims(r *http.Request, claims *Claims) (*Account, error) {
	id, err := claims.AccountID()
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if account.Role != claims.Role {
		return nil, ErrInvalidToken
	}
	return account, nil
}
