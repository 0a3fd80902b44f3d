/**
 * @description
 * The root controller owns the session object and wires the request client,
 * the raw auth client, the biometric gatekeeper and the navigation side
 * channel together. Every role transition in the app goes through here or
 * through the request client's forced logout.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/biometric"
	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/session"
	"github.com/matthew-kal/SC---FRONTEND/internal/store"
)

// DefaultBootstrapRefreshTimeout bounds the direct refresh exchange at startup.
const DefaultBootstrapRefreshTimeout = 10 * time.Second

// AuthAPI is the backend's unauthenticated surface.
type AuthAPI interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error)
	Login(ctx context.Context, role domain.Role, username, password string) (*domain.TokenResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
}

// JSONCaller performs authenticated JSON calls.
type JSONCaller interface {
	SendJSON(ctx context.Context, method, endpoint string, payload, out any) error
}

// Gate is the biometric gatekeeper as seen by the controller.
type Gate interface {
	ShouldAttempt(ctx context.Context, role domain.Role) (bool, error)
	Authenticate(ctx context.Context) (domain.BiometricResult, error)
	OfferSetup(ctx context.Context, role domain.Role, prompter biometric.Prompter) (bool, error)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	State(ctx context.Context) (domain.BiometricState, error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Session   *session.Session
	Vault     *store.Vault
	Auth      AuthAPI
	API       JSONCaller
	Gate      Gate
	Navigator session.Navigator
	// Prompter asks about biometric setup after a patient login. Optional.
	Prompter biometric.Prompter
	Logger   *slog.Logger
	// BootstrapRefreshTimeout defaults to 10 seconds.
	BootstrapRefreshTimeout time.Duration
}

// Controller coordinates session lifecycle operations.
type Controller struct {
	session        *session.Session
	vault          *store.Vault
	auth           AuthAPI
	api            JSONCaller
	gate           Gate
	navigator      session.Navigator
	prompter       biometric.Prompter
	logger         *slog.Logger
	refreshTimeout time.Duration
}

// NewController creates a Controller.
func NewController(d Deps) *Controller {
	timeout := d.BootstrapRefreshTimeout
	if timeout <= 0 {
		timeout = DefaultBootstrapRefreshTimeout
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		session:        d.Session,
		vault:          d.Vault,
		auth:           d.Auth,
		api:            d.API,
		gate:           d.Gate,
		navigator:      d.Navigator,
		prompter:       d.Prompter,
		logger:         logger.With("component", "controller"),
		refreshTimeout: timeout,
	}
}

// Session returns the session handle owned by the controller.
func (c *Controller) Session() *session.Session {
	return c.session
}
