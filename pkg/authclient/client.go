/**
 * @description
 * This package provides a client for the backend's unauthenticated auth
 * endpoints: token refresh, the role-specific logins and the password reset
 * request. None of these calls carry a bearer token, which is why they live
 * outside the authenticated request client.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 * - The internal domain package for token payloads and sentinel errors.
 */
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

const (
	refreshPath       = "/api/token/refresh/"
	patientLoginPath  = "/users/patient/login/"
	nurseLoginPath    = "/users/nurse/login/"
	passwordResetPath = "/users/password-reset/"
)

// ErrMalformedTokenResponse is returned when a token endpoint answers 2xx
// without an access token.
var ErrMalformedTokenResponse = errors.New("token response missing access token")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("auth endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Client calls the unauthenticated auth endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout falls back to 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying http client so callers can share its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Refresh exchanges a refresh token for a new access token (and possibly a
// rotated refresh token). The deadline comes from ctx.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error) {
	var resp domain.TokenResponse
	if err := c.post(ctx, refreshPath, domain.RefreshRequest{Refresh: refreshToken}, &resp); err != nil {
		return nil, err
	}
	if resp.Access == "" {
		return nil, ErrMalformedTokenResponse
	}
	return &resp, nil
}

// Login authenticates against the role's login endpoint.
func (c *Client) Login(ctx context.Context, role domain.Role, username, password string) (*domain.TokenResponse, error) {
	var path string
	switch role {
	case domain.RolePatient:
		path = patientLoginPath
	case domain.RoleNurse:
		path = nurseLoginPath
	default:
		return nil, fmt.Errorf("cannot log in as role %q", role)
	}

	var resp domain.TokenResponse
	err := c.post(ctx, path, domain.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusBadRequest) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if resp.Access == "" || resp.Refresh == "" {
		return nil, ErrMalformedTokenResponse
	}
	return &resp, nil
}

// RequestPasswordReset asks the backend to email a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	err := c.post(ctx, passwordResetPath, domain.PasswordResetRequest{Email: strings.TrimSpace(email)}, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return domain.ErrTooManyRequests
	}
	return err
}

func (c *Client) post(ctx context.Context, path string, body, target interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if target != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("failed to unmarshal response body: %w", err)
		}
	}
	return nil
}
