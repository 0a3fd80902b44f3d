package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/session"
	"github.com/matthew-kal/SC---FRONTEND/internal/store"
)

type navigatorStub struct {
	mu      sync.Mutex
	resets  []session.Notice
	entered []domain.Role
}

func (n *navigatorStub) ResetToLogin(notice session.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, notice)
}

func (n *navigatorStub) EnterApp(role domain.Role) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entered = append(n.entered, role)
}

func (n *navigatorStub) resetCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.resets)
}

type refresherStub struct {
	calls   atomic.Int32
	resp    *domain.TokenResponse
	err     error
	release chan struct{}
}

func (r *refresherStub) Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error) {
	r.calls.Add(1)
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.resp, nil
}

type harness struct {
	mem       *store.MemoryStore
	vault     *store.Vault
	session   *session.Session
	navigator *navigatorStub
	refresher *refresherStub
	client    *Client
}

func newHarness(t *testing.T, baseURL string, role domain.Role, coalesce bool) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemoryStore()
	h := &harness{
		mem:       mem,
		vault:     store.NewVault(mem),
		session:   session.New(logger),
		navigator: &navigatorStub{},
		refresher: &refresherStub{},
	}
	if role.Valid() {
		if err := h.session.Login(role); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}
	h.client = NewClient(baseURL, h.vault, h.session, h.refresher, h.navigator, Options{
		CoalesceRefresh: coalesce,
		Logger:          logger,
	})
	return h
}

func (h *harness) seed(t *testing.T, key, value string) {
	t.Helper()
	if err := h.mem.Set(context.Background(), key, value); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func (h *harness) value(key string) (string, bool) {
	v, ok, _ := h.mem.Get(context.Background(), key)
	return v, ok
}

// tokenServer answers 200 for the accepted bearer token and 401 otherwise.
func tokenServer(t *testing.T, accepted string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+accepted {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDo_MissingTokensFailsFastWithoutNetwork(t *testing.T) {
	tests := []struct {
		name string
		role domain.Role
		seed map[string]string
	}{
		{name: "no_role", role: domain.RoleNone, seed: map[string]string{domain.KeyAccessPatient: "a", domain.KeyRefreshPatient: "r"}},
		{name: "patient_missing_refresh", role: domain.RolePatient, seed: map[string]string{domain.KeyAccessPatient: "a", domain.KeyAccessNurse: "na", domain.KeyRefreshNurse: "nr"}},
		{name: "nurse_missing_access", role: domain.RoleNurse, seed: map[string]string{domain.KeyRefreshNurse: "nr"}},
		{name: "nurse_nothing", role: domain.RoleNurse, seed: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := tokenServer(t, "a", &hits)
			h := newHarness(t, srv.URL, tt.role, true)
			for k, v := range tt.seed {
				h.seed(t, k, v)
			}

			_, err := h.client.Do(context.Background(), "/users/dashboard/", RequestOptions{})
			var authErr *domain.AuthRequiredError
			if !errors.As(err, &authErr) || !errors.Is(err, domain.ErrAuthRequired) {
				t.Fatalf("expected AuthRequiredError, got %v", err)
			}
			if hits.Load() != 0 {
				t.Fatalf("expected no network call, got %d", hits.Load())
			}
			for _, key := range domain.CredentialKeys {
				if _, ok := h.value(key); ok {
					t.Fatalf("expected %s to be cleared", key)
				}
			}
			if h.session.Role() != domain.RoleNone {
				t.Fatalf("expected role reset, got %q", h.session.Role())
			}
			if h.navigator.resetCount() != 1 {
				t.Fatalf("expected one reset to login, got %d", h.navigator.resetCount())
			}
		})
	}
}

func TestDo_PassesThroughNon401Verbatim(t *testing.T) {
	var authHeader, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"boom"}`))
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, domain.RolePatient, true)
	h.seed(t, domain.KeyAccessPatient, "a1")
	h.seed(t, domain.KeyRefreshPatient, "r1")

	resp, err := h.client.Do(context.Background(), "/users/categories/", RequestOptions{
		Header: http.Header{"Authorization": []string{"Bearer forged"}},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 passed through, got %d", resp.StatusCode)
	}
	if authHeader != "Bearer a1" {
		t.Fatalf("expected injected bearer, got %q", authHeader)
	}
	if contentType != "application/json" {
		t.Fatalf("expected json content type default, got %q", contentType)
	}
	if h.refresher.calls.Load() != 0 {
		t.Fatal("expected no refresh on non-401")
	}
}

func TestDo_RefreshesOnceAndReplaysBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, domain.RoleNurse, false)
	h.seed(t, domain.KeyAccessNurse, "a1")
	h.seed(t, domain.KeyRefreshNurse, "r1")
	h.refresher.resp = &domain.TokenResponse{Access: "a2"}

	resp, err := h.client.Do(context.Background(), "/users/patient/register/", RequestOptions{
		Method: http.MethodPost,
		Body:   []byte(`{"username":"p1"}`),
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected retried response, got %d", resp.StatusCode)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"username":"p1"}` {
		t.Fatalf("expected body replayed on retry, got %v", bodies)
	}
	if v, _ := h.value(domain.KeyAccessNurse); v != "a2" {
		t.Fatalf("expected new access token stored, got %q", v)
	}
	if v, _ := h.value(domain.KeyRefreshNurse); v != "r1" {
		t.Fatalf("expected refresh token preserved without rotation, got %q", v)
	}
}

func TestDo_RetriesExactlyOnceEvenIfRetryIs401(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, "never-accepted", &hits)

	h := newHarness(t, srv.URL, domain.RolePatient, true)
	h.seed(t, domain.KeyAccessPatient, "a1")
	h.seed(t, domain.KeyRefreshPatient, "r1")
	h.refresher.resp = &domain.TokenResponse{Access: "a2", Refresh: "r2"}

	resp, err := h.client.Do(context.Background(), "/users/dashboard/", RequestOptions{})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected second 401 returned as-is, got %d", resp.StatusCode)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected exactly 2 requests, got %d", hits.Load())
	}
	if h.refresher.calls.Load() != 1 {
		t.Fatalf("expected exactly 1 refresh, got %d", h.refresher.calls.Load())
	}
	if v, _ := h.value(domain.KeyRefreshPatient); v != "r2" {
		t.Fatalf("expected rotated refresh token stored, got %q", v)
	}
	if h.navigator.resetCount() != 0 {
		t.Fatal("expected no forced logout")
	}
}

func TestDo_FailedRefreshExpiresOnlyThatRole(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, "a2", &hits)

	h := newHarness(t, srv.URL, domain.RolePatient, true)
	h.seed(t, domain.KeyAccessPatient, "a1")
	h.seed(t, domain.KeyRefreshPatient, "r1")
	h.seed(t, domain.KeyAccessNurse, "na")
	h.seed(t, domain.KeyRefreshNurse, "nr")
	h.refresher.err = errors.New("refresh rejected")

	_, err := h.client.Do(context.Background(), "/users/dashboard/", RequestOptions{})
	var expired *domain.SessionExpiredError
	if !errors.As(err, &expired) || expired.Role != domain.RolePatient {
		t.Fatalf("expected SessionExpiredError for patient, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry after failed refresh, got %d requests", hits.Load())
	}
	for _, key := range []string{domain.KeyAccessPatient, domain.KeyRefreshPatient} {
		if _, ok := h.value(key); ok {
			t.Fatalf("expected %s deleted", key)
		}
	}
	if v, _ := h.value(domain.KeyRefreshNurse); v != "nr" {
		t.Fatal("expected nurse credentials untouched")
	}
	if h.session.Role() != domain.RoleNone {
		t.Fatalf("expected role reset, got %q", h.session.Role())
	}
	if len(h.navigator.resets) != 1 || h.navigator.resets[0] != session.NoticeSessionExpired {
		t.Fatalf("expected one session-expired reset, got %v", h.navigator.resets)
	}
}

func TestDo_CoalescesConcurrentRefreshes(t *testing.T) {
	const callers = 5

	var unauthorized atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			unauthorized.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, domain.RolePatient, true)
	h.seed(t, domain.KeyAccessPatient, "a1")
	h.seed(t, domain.KeyRefreshPatient, "r1")
	h.refresher.resp = &domain.TokenResponse{Access: "a2", Refresh: "r2"}
	h.refresher.release = make(chan struct{})

	var wg sync.WaitGroup
	statuses := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := h.client.Do(context.Background(), "/users/dashboard/", RequestOptions{})
			if err != nil {
				t.Errorf("Do() error = %v", err)
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for unauthorized.Load() < callers && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	close(h.refresher.release)
	wg.Wait()
	close(statuses)

	for status := range statuses {
		if status != http.StatusOK {
			t.Fatalf("expected every caller to succeed after shared refresh, got %d", status)
		}
	}
	if got := h.refresher.calls.Load(); got != 1 {
		t.Fatalf("expected a single coalesced refresh, got %d", got)
	}
}

// rotatingRefresher accepts only the current refresh token and rotates it on
// every exchange, revoking the old one.
type rotatingRefresher struct {
	mu      sync.Mutex
	current string
	next    int
	calls   atomic.Int32
}

func (r *rotatingRefresher) Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if refreshToken != r.current {
		return nil, errors.New("refresh token revoked")
	}
	r.next++
	r.current = fmt.Sprintf("r%d", r.next)
	return &domain.TokenResponse{Access: fmt.Sprintf("a%d", r.next), Refresh: r.current}, nil
}

func TestDo_LateUnauthorizedReusesRotatedPair(t *testing.T) {
	for _, coalesce := range []bool{true, false} {
		t.Run(fmt.Sprintf("coalesce_%v", coalesce), func(t *testing.T) {
			held := make(chan struct{})
			release := make(chan struct{})
			var holdOnce sync.Once
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth := r.Header.Get("Authorization")
				if r.URL.Path == "/users/categories/" && auth == "Bearer a1" {
					holdOnce.Do(func() { close(held) })
					<-release
				}
				if auth != "Bearer a2" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()
			var releaseOnce sync.Once
			unblock := func() { releaseOnce.Do(func() { close(release) }) }
			defer unblock()

			h := newHarness(t, srv.URL, domain.RolePatient, coalesce)
			h.seed(t, domain.KeyAccessPatient, "a1")
			h.seed(t, domain.KeyRefreshPatient, "r1")
			rotator := &rotatingRefresher{current: "r1", next: 1}
			h.client = NewClient(srv.URL, h.vault, h.session, rotator, h.navigator, Options{
				CoalesceRefresh: coalesce,
				Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
			})

			type result struct {
				status int
				err    error
			}
			late := make(chan result, 1)
			go func() {
				resp, err := h.client.Do(context.Background(), "/users/categories/", RequestOptions{})
				if err != nil {
					late <- result{err: err}
					return
				}
				resp.Body.Close()
				late <- result{status: resp.StatusCode}
			}()

			select {
			case <-held:
			case <-time.After(2 * time.Second):
				t.Fatal("request with the old token never reached the server")
			}

			resp, err := h.client.Do(context.Background(), "/users/dashboard/", RequestOptions{})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected first caller to succeed after refresh, got %d", resp.StatusCode)
			}

			unblock()
			got := <-late
			if got.err != nil {
				t.Fatalf("late caller error = %v", got.err)
			}
			if got.status != http.StatusOK {
				t.Fatalf("expected late caller to retry with the stored token, got %d", got.status)
			}
			if n := rotator.calls.Load(); n != 1 {
				t.Fatalf("expected a single refresh exchange, got %d", n)
			}
			if v, _ := h.value(domain.KeyRefreshPatient); v != "r2" {
				t.Fatalf("expected rotated refresh token kept, got %q", v)
			}
			if h.session.Role() != domain.RolePatient {
				t.Fatalf("expected patient session kept, got %q", h.session.Role())
			}
			if h.navigator.resetCount() != 0 {
				t.Fatal("expected no forced logout")
			}
		})
	}
}

type saveFailingVault struct {
	*store.Vault
}

func (v saveFailingVault) SaveRefreshed(ctx context.Context, role domain.Role, resp domain.TokenResponse) error {
	return errors.New("keychain write failed")
}

func TestDo_UnpersistedRefreshExpiresSession(t *testing.T) {
	var hits atomic.Int32
	srv := tokenServer(t, "a2", &hits)

	h := newHarness(t, srv.URL, domain.RolePatient, true)
	h.seed(t, domain.KeyAccessPatient, "a1")
	h.seed(t, domain.KeyRefreshPatient, "r1")
	h.refresher.resp = &domain.TokenResponse{Access: "a2", Refresh: "r2"}
	h.client = NewClient(srv.URL, saveFailingVault{h.vault}, h.session, h.refresher, h.navigator, Options{
		CoalesceRefresh: true,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := h.client.Do(context.Background(), "/users/dashboard/", RequestOptions{})
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected session expired, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry with unsaved tokens, got %d requests", hits.Load())
	}
	for _, key := range []string{domain.KeyAccessPatient, domain.KeyRefreshPatient} {
		if _, ok := h.value(key); ok {
			t.Fatalf("expected %s deleted", key)
		}
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/categories/":
			_, _ = w.Write([]byte(`{"categories":[{"id":1,"category":"Recovery"}]}`))
		case "/users/delete-account/":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"Incorrect password."}`))
		case "/users/broken/":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
		case "/users/logout/":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL, domain.RolePatient, true)
	h.seed(t, domain.KeyAccessPatient, "a1")
	h.seed(t, domain.KeyRefreshPatient, "r1")
	ctx := context.Background()

	var list domain.CategoryList
	if err := h.client.GetJSON(ctx, "/users/categories/", RequestOptions{}, &list); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if len(list.Categories) != 1 || list.Categories[0].Name != "Recovery" {
		t.Fatalf("unexpected categories %+v", list)
	}

	err := h.client.SendJSON(ctx, http.MethodPost, "/users/delete-account/", domain.DeleteAccountRequest{Password: "x"}, nil)
	var failure *domain.RequestFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected RequestFailure, got %v", err)
	}
	if failure.Status != http.StatusForbidden || failure.Detail() != "Incorrect password." {
		t.Fatalf("unexpected failure %+v", failure)
	}

	err = h.client.GetJSON(ctx, "/users/broken/", RequestOptions{}, nil)
	if !errors.As(err, &failure) || failure.Body != nil || failure.Detail() != "Request failed" {
		t.Fatalf("expected generic failure for non-JSON body, got %v", err)
	}

	if err := h.client.SendJSON(ctx, http.MethodPost, "/users/logout/", domain.RefreshRequest{Refresh: "r1"}, &struct{}{}); err != nil {
		t.Fatalf("expected empty 204 body to decode cleanly, got %v", err)
	}
}
