/**
 * @description
 * This package provides the authenticated request client every backend call
 * in the app goes through. It injects the current role's bearer token, and
 * when the backend answers 401 it refreshes the token once and replays the
 * request once. Irrecoverable auth failures log the session out and reset
 * navigation to the login screen.
 *
 * Key features:
 * - Fail-fast AuthRequiredError when the role has no complete credential pair.
 * - A single refresh-and-retry cycle, rotation aware.
 * - Concurrent refreshes for the same role can share one in-flight call.
 * - GetJSON for business calls, surfacing non-OK responses as RequestFailure.
 *
 * @dependencies
 * - golang.org/x/sync/singleflight: refresh coalescing per role.
 * - internal/domain, internal/session: error taxonomy and the navigation side channel.
 */
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/session"
)

// Refresher exchanges a refresh token at the backend.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error)
}

// TokenVault is the credential storage the client reads and mutates.
type TokenVault interface {
	Pair(ctx context.Context, role domain.Role) (domain.CredentialPair, error)
	SaveRefreshed(ctx context.Context, role domain.Role, resp domain.TokenResponse) error
	ClearRole(ctx context.Context, role domain.Role) error
	ClearAll(ctx context.Context) error
}

// Session is the slice of the session object the client needs.
type Session interface {
	Role() domain.Role
	Logout() domain.Role
}

// Options tunes a Client.
type Options struct {
	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client
	// CoalesceRefresh makes concurrent 401s for one role share a single refresh.
	CoalesceRefresh bool
	Logger          *slog.Logger
}

// RequestOptions describes one backend call. Body is kept as bytes so the
// request can be replayed after a refresh. Any Authorization header is
// replaced by the client's own.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// Client performs authenticated backend calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	vault      TokenVault
	session    Session
	refresher  Refresher
	navigator  session.Navigator
	logger     *slog.Logger
	coalesce   bool
	flights    singleflight.Group
}

// NewClient wires a Client to its collaborators.
func NewClient(baseURL string, vault TokenVault, sess Session, refresher Refresher, navigator session.Navigator, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		vault:      vault,
		session:    sess,
		refresher:  refresher,
		navigator:  navigator,
		logger:     logger.With("component", "api_client"),
		coalesce:   opts.CoalesceRefresh,
	}
}

// Do sends the request with the current role's access token. Any status
// other than 401 is returned unchanged. A 401 triggers exactly one refresh
// and one retry whose response is returned whatever its status.
func (c *Client) Do(ctx context.Context, endpoint string, opts RequestOptions) (*http.Response, error) {
	role := c.session.Role()

	pair, err := c.vault.Pair(ctx, role)
	if err != nil {
		c.logger.Warn("credential read failed", "role", string(role), "error", err)
		pair = domain.CredentialPair{}
	}
	if !role.Valid() || !pair.Complete() {
		return nil, c.requireAuth(ctx, role)
	}

	resp, err := c.send(ctx, endpoint, opts, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	c.logger.Info("access token rejected, refreshing", "role", string(role), "endpoint", endpoint)
	tokens, err := c.refresh(ctx, role, pair.AccessToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, c.expireSession(ctx, role, err)
	}

	return c.send(ctx, endpoint, opts, tokens.Access)
}

// GetJSON performs Do and decodes the JSON body into out. Non-OK responses
// come back as *domain.RequestFailure. out may be nil.
func (c *Client) GetJSON(ctx context.Context, endpoint string, opts RequestOptions, out any) error {
	resp, err := c.Do(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failure := &domain.RequestFailure{Status: resp.StatusCode, Raw: raw}
		if len(bytes.TrimSpace(raw)) > 0 {
			var body any
			if json.Unmarshal(raw, &body) == nil {
				failure.Body = body
			}
		}
		return failure
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

// SendJSON marshals payload as the request body and calls GetJSON.
func (c *Client) SendJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = encoded
	}
	return c.GetJSON(ctx, endpoint, RequestOptions{Method: method, Body: body}, out)
}

func (c *Client) send(ctx context.Context, endpoint string, opts RequestOptions, accessToken string) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, values := range opts.Header {
		if http.CanonicalHeaderKey(key) == "Authorization" {
			continue
		}
		req.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) url(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

// refresh obtains a usable access token for role after rejected was
// answered with 401. With coalescing on, callers that arrive while an
// exchange is in flight wait for it instead of starting their own. The
// shared exchange is detached from any single caller's cancellation.
func (c *Client) refresh(ctx context.Context, role domain.Role, rejected string) (*domain.TokenResponse, error) {
	if !c.coalesce {
		return c.refreshAndStore(ctx, role, rejected)
	}

	ch := c.flights.DoChan(string(role), func() (interface{}, error) {
		return c.refreshAndStore(context.WithoutCancel(ctx), role, rejected)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight refresh", "role", string(role))
		}
		return res.Val.(*domain.TokenResponse), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refreshAndStore works from the stored pair, not the one the request was
// sent with. A 401 that lands after another caller already rotated the pair
// reuses the stored access token instead of spending a revoked refresh token.
func (c *Client) refreshAndStore(ctx context.Context, role domain.Role, rejected string) (*domain.TokenResponse, error) {
	stored, err := c.vault.Pair(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored credentials: %w", err)
	}
	if stored.AccessToken != "" && stored.AccessToken != rejected {
		c.logger.Debug("access token already refreshed", "role", string(role))
		return &domain.TokenResponse{Access: stored.AccessToken}, nil
	}
	if stored.RefreshToken == "" {
		return nil, errors.New("no refresh token stored")
	}

	tokens, err := c.refresher.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		return nil, err
	}
	if tokens == nil || tokens.Access == "" {
		return nil, errors.New("refresh response missing access token")
	}
	if err := c.vault.SaveRefreshed(ctx, role, *tokens); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	c.logger.Info("access token refreshed", "role", string(role), "rotated", tokens.Refresh != "")
	return tokens, nil
}

func (c *Client) requireAuth(ctx context.Context, role domain.Role) error {
	if err := c.vault.ClearAll(ctx); err != nil {
		c.logger.Warn("failed to clear credentials", "error", err)
	}
	c.session.Logout()
	c.navigator.ResetToLogin(session.NoticeNone)
	c.logger.Warn("request blocked without credentials", "role", string(role))
	return &domain.AuthRequiredError{Role: role}
}

func (c *Client) expireSession(ctx context.Context, role domain.Role, cause error) error {
	if err := c.vault.ClearRole(context.WithoutCancel(ctx), role); err != nil {
		c.logger.Warn("failed to clear expired credentials", "role", string(role), "error", err)
	}
	// Only the caller that actually ended the session shows the notice.
	if c.session.Logout() == role {
		c.navigator.ResetToLogin(session.NoticeSessionExpired)
	}
	c.logger.Warn("session expired", "role", string(role), "error", cause)
	return &domain.SessionExpiredError{Role: role, Cause: cause}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
