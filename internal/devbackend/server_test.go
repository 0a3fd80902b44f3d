package devbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/pkg/authclient"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

type published struct {
	routingKey string
	event      domain.SessionEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	event, _ := body.(domain.SessionEvent)
	p.events = append(p.events, published{routingKey: routingKey, event: event})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}

type testBackend struct {
	srv       *httptest.Server
	repo      *MemoryAccountRepository
	publisher *recordingPublisher
	auth      *authclient.Client
}

func newTestBackend(t *testing.T, rotate bool) *testBackend {
	t.Helper()
	repo := NewMemoryAccountRepository()
	err := Seed(context.Background(), repo, []SeedAccount{
		{Role: domain.RolePatient, Username: "pat", Password: "Patient1!", Email: "pat@example.com"},
		{Role: domain.RoleNurse, Username: "nina", Password: "Nurse1!pw", Email: "nina@example.com"},
	})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	publisher := &recordingPublisher{}
	server := NewServer(Options{
		Accounts:      repo,
		Tokens:        NewTokenIssuer(testSigningKey, "test", 5*time.Minute, time.Hour),
		ResetLimiter:  NewMemoryLimiter(2, time.Hour),
		Publisher:     publisher,
		RotateRefresh: rotate,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)

	return &testBackend{
		srv:       srv,
		repo:      repo,
		publisher: publisher,
		auth:      authclient.NewClient(srv.URL, 5*time.Second),
	}
}

func (b *testBackend) login(t *testing.T, role domain.Role, username, password string) *domain.TokenResponse {
	t.Helper()
	tokens, err := b.auth.Login(context.Background(), role, username, password)
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return tokens
}

func (b *testBackend) call(t *testing.T, method, path, access string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func TestLogin_RoleEndpoints(t *testing.T) {
	b := newTestBackend(t, true)

	tests := []struct {
		name     string
		role     domain.Role
		username string
		password string
		wantErr  error
	}{
		{name: "patient", role: domain.RolePatient, username: "pat", password: "Patient1!"},
		{name: "nurse", role: domain.RoleNurse, username: "NINA", password: "Nurse1!pw"},
		{name: "wrong_password", role: domain.RolePatient, username: "pat", password: "nope", wantErr: domain.ErrInvalidCredentials},
		{name: "wrong_role", role: domain.RoleNurse, username: "pat", password: "Patient1!", wantErr: domain.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := b.auth.Login(context.Background(), tt.role, tt.username, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if tokens.Access == "" || tokens.Refresh == "" {
				t.Fatalf("expected both tokens, got %+v", tokens)
			}
		})
	}
}

func TestRefresh_RotationRevokesOldToken(t *testing.T) {
	b := newTestBackend(t, true)
	ctx := context.Background()
	first := b.login(t, domain.RolePatient, "pat", "Patient1!")

	rotated, err := b.auth.Refresh(ctx, first.Refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if rotated.Refresh == "" || rotated.Refresh == first.Refresh {
		t.Fatalf("expected a rotated refresh token, got %+v", rotated)
	}

	_, err = b.auth.Refresh(ctx, first.Refresh)
	var statusErr *authclient.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for reused refresh token, got %v", err)
	}
	if _, err := b.auth.Refresh(ctx, rotated.Refresh); err != nil {
		t.Fatalf("expected rotated token to work, got %v", err)
	}
}

func TestRefresh_WithoutRotationOmitsRefresh(t *testing.T) {
	b := newTestBackend(t, false)
	first := b.login(t, domain.RolePatient, "pat", "Patient1!")

	tokens, err := b.auth.Refresh(context.Background(), first.Refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tokens.Access == "" || tokens.Refresh != "" {
		t.Fatalf("expected access only, got %+v", tokens)
	}
}

func TestAuthMiddleware(t *testing.T) {
	b := newTestBackend(t, true)
	patient := b.login(t, domain.RolePatient, "pat", "Patient1!")
	nurse := b.login(t, domain.RoleNurse, "nina", "Nurse1!pw")

	tests := []struct {
		name   string
		path   string
		bearer string
		want   int
	}{
		{name: "missing_token", path: "/users/user-settings/", want: http.StatusUnauthorized},
		{name: "garbage_token", path: "/users/user-settings/", bearer: "abc", want: http.StatusUnauthorized},
		{name: "refresh_as_bearer", path: "/users/user-settings/", bearer: patient.Refresh, want: http.StatusUnauthorized},
		{name: "patient_settings", path: "/users/user-settings/", bearer: patient.Access, want: http.StatusOK},
		{name: "nurse_on_patient_route", path: "/users/dashboard/", bearer: nurse.Access, want: http.StatusForbidden},
		{name: "patient_on_nurse_route", path: "/users/patients-list/?searchBy=text&query=p", bearer: patient.Access, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := b.call(t, http.MethodGet, tt.path, tt.bearer, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	b := newTestBackend(t, true)
	tokens := b.login(t, domain.RolePatient, "pat", "Patient1!")

	resp, _ := b.call(t, http.MethodPost, "/users/logout/", tokens.Access, domain.RefreshRequest{Refresh: tokens.Refresh})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, err := b.auth.Refresh(context.Background(), tokens.Refresh); err == nil {
		t.Fatal("expected refresh to fail after logout")
	}

	keys := strings.Join(b.publisher.routingKeys(), ",")
	if !strings.Contains(keys, domain.RoutingLoggedIn) || !strings.Contains(keys, domain.RoutingLoggedOut) {
		t.Fatalf("expected login and logout events, got %s", keys)
	}
}

func TestPasswordReset_Throttled(t *testing.T) {
	b := newTestBackend(t, true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.auth.RequestPasswordReset(ctx, "pat@example.com"); err != nil {
			t.Fatalf("request %d error = %v", i+1, err)
		}
	}
	if err := b.auth.RequestPasswordReset(ctx, "PAT@example.com"); !errors.Is(err, domain.ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}
	if err := b.auth.RequestPasswordReset(ctx, "unknown@example.com"); err != nil {
		t.Fatalf("expected unknown email to succeed silently, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	b := newTestBackend(t, true)
	tokens := b.login(t, domain.RolePatient, "pat", "Patient1!")

	resp, raw := b.call(t, http.MethodPost, "/users/delete-account/", tokens.Access, domain.DeleteAccountRequest{Password: "wrong"})
	if resp.StatusCode != http.StatusForbidden || !strings.Contains(string(raw), "Incorrect password.") {
		t.Fatalf("expected 403 with detail, got %d %s", resp.StatusCode, raw)
	}

	resp, _ = b.call(t, http.MethodPost, "/users/delete-account/", tokens.Access, domain.DeleteAccountRequest{Password: "Patient1!"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, _ = b.call(t, http.MethodGet, "/users/user-settings/", tokens.Access, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected deleted account's token rejected, got %d", resp.StatusCode)
	}
	if _, err := b.auth.Refresh(context.Background(), tokens.Refresh); err == nil {
		t.Fatal("expected refresh to fail for deleted account")
	}
}

func TestChangePassword(t *testing.T) {
	b := newTestBackend(t, true)
	tokens := b.login(t, domain.RolePatient, "pat", "Patient1!")

	resp, _ := b.call(t, http.MethodPost, "/users/change-password/", tokens.Access, domain.ChangePasswordRequest{OldPassword: "bad", NewPassword: "Another1!"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong old password, got %d", resp.StatusCode)
	}
	resp, _ = b.call(t, http.MethodPost, "/users/change-password/", tokens.Access, domain.ChangePasswordRequest{OldPassword: "Patient1!", NewPassword: "Another1!"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	b.login(t, domain.RolePatient, "pat", "Another1!")
}

func TestDashboard_ReflectsCompletions(t *testing.T) {
	b := newTestBackend(t, true)
	tokens := b.login(t, domain.RolePatient, "pat", "Patient1!")

	resp, _ := b.call(t, http.MethodPost, "/users/update_video_completion/201/", tokens.Access, domain.CompletionUpdate{IsCompleted: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for video completion, got %d", resp.StatusCode)
	}
	resp, _ = b.call(t, http.MethodPost, "/users/tasks/update-completion/302/", tokens.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for task completion, got %d", resp.StatusCode)
	}
	resp, _ = b.call(t, http.MethodPost, "/users/tasks/update-completion/999/", tokens.Access, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", resp.StatusCode)
	}

	resp, raw := b.call(t, http.MethodGet, "/users/dashboard/", tokens.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var dash domain.Dashboard
	if err := json.Unmarshal(raw, &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if !dash.GeneralVideos[0].Completed || dash.GeneralVideos[1].Completed {
		t.Fatalf("unexpected video completion %+v", dash.GeneralVideos)
	}
	if !dash.Tasks[1].Completed || dash.WeekData.Week != 1 || dash.WeekData.AllTime != 1 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
}

func TestCatalogueRoutes(t *testing.T) {
	b := newTestBackend(t, true)
	tokens := b.login(t, domain.RolePatient, "pat", "Patient1!")

	tests := []struct {
		path string
		want int
	}{
		{path: "/users/categories/", want: http.StatusOK},
		{path: "/users/2/subcategories/", want: http.StatusOK},
		{path: "/users/9/subcategories/", want: http.StatusNotFound},
		{path: "/users/2/3/modules-list/", want: http.StatusOK},
		{path: "/users/2/9/modules-list/", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := b.call(t, http.MethodGet, tt.path, tokens.Access, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestNurseTools(t *testing.T) {
	b := newTestBackend(t, true)
	nurse := b.login(t, domain.RoleNurse, "nina", "Nurse1!pw")

	reg := domain.PatientRegistration{Email: "new@example.com", Username: "newpat", Password: "Str0ng!pw", Password2: "Str0ng!pw"}
	resp, _ := b.call(t, http.MethodPost, "/users/patient/register/", nurse.Access, reg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp, _ = b.call(t, http.MethodPost, "/users/patient/register/", nurse.Access, reg)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", resp.StatusCode)
	}

	resp, raw := b.call(t, http.MethodGet, "/users/patients-list/?searchBy=text&query=NEW", nurse.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var patients []domain.PatientSummary
	if err := json.Unmarshal(raw, &patients); err != nil || len(patients) != 1 || patients[0].Username != "newpat" {
		t.Fatalf("unexpected search result %s (%v)", raw, err)
	}

	resp, _ = b.call(t, http.MethodGet, "/users/patient-graph/2/", nurse.Access, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a nurse id, got %d", resp.StatusCode)
	}
	resp, raw = b.call(t, http.MethodGet, "/users/patient-graph/1/", nurse.Access, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "weekData") {
		t.Fatalf("expected patient graph, got %d %s", resp.StatusCode, raw)
	}
}
