/**
 * @description
 * HTTP surface of the development backend. It speaks the same REST contract
 * as the production API so the client core can be exercised end to end:
 * role logins, refresh with rotation, logout, account management, the
 * content catalogue and the nurse patient tools.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and request logging
 * - github.com/go-chi/cors: CORS for the mobile dev client
 * - github.com/golang-jwt/jwt/v5: access and refresh tokens
 */
package devbackend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/pkg/rabbitmq"
)

type contextKey string

const accountContextKey contextKey = "account"

// Options configure a Server.
type Options struct {
	Accounts       AccountRepository
	Tokens         *TokenIssuer
	Revocations    *RevocationList
	ResetLimiter   Limiter
	Publisher      rabbitmq.Publisher
	Catalogue      *Catalogue
	Progress       *ProgressTracker
	RotateRefresh  bool
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server holds the backend's collaborators.
type Server struct {
	accounts    AccountRepository
	tokens      *TokenIssuer
	revocations *RevocationList
	limiter     Limiter
	events      eventSink
	catalogue   *Catalogue
	progress    *ProgressTracker
	rotate      bool
	origins     []string
	logger      *slog.Logger
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Revocations == nil {
		opts.Revocations = NewRevocationList()
	}
	if opts.ResetLimiter == nil {
		opts.ResetLimiter = NewMemoryLimiter(5, time.Hour)
	}
	if opts.Catalogue == nil {
		opts.Catalogue = DefaultCatalogue()
	}
	if opts.Progress == nil {
		opts.Progress = NewProgressTracker()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		accounts:    opts.Accounts,
		tokens:      opts.Tokens,
		revocations: opts.Revocations,
		limiter:     opts.ResetLimiter,
		events:      eventSink{publisher: opts.Publisher, logger: logger},
		catalogue:   opts.Catalogue,
		progress:    opts.Progress,
		rotate:      opts.RotateRefresh,
		origins:     opts.AllowedOrigins,
		logger:      logger,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Dev backend is healthy"))
	})

	r.Post("/api/token/refresh/", s.handleRefresh)
	r.Post("/users/patient/login/", s.handleLogin(domain.RolePatient))
	r.Post("/users/nurse/login/", s.handleLogin(domain.RoleNurse))
	r.Post("/users/password-reset/", s.handlePasswordReset)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/users/logout/", s.handleLogout)
		r.Get("/users/user-settings/", s.handleUserSettings)
		r.Post("/users/change-password/", s.handleChangePassword)
		r.Post("/users/delete-account/", s.handleDeleteAccount)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(domain.RolePatient))
			r.Get("/users/categories/", s.handleCategories)
			r.Get("/users/{category}/subcategories/", s.handleSubcategories)
			r.Get("/users/{category}/{subcategory}/modules-list/", s.handleModules)
			r.Get("/users/dashboard/", s.handleDashboard)
			r.Post("/users/update_video_completion/{id}/", s.handleVideoCompletion)
			r.Post("/users/tasks/update-completion/{id}/", s.handleTaskCompletion)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(domain.RoleNurse))
			r.Post("/users/patient/register/", s.handleRegisterPatient)
			r.Get("/users/patients-list/", s.handlePatientsList)
			r.Get("/users/patient-graph/{id}/", s.handlePatientGraph)
		})
	})

	return r
}

// authMiddleware accepts only unexpired access tokens of existing accounts.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(strings.TrimSpace(r.Header.Get("Authorization")))
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		claims, err := s.tokens.Parse(raw, TokenTypeAccess)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		id, err := claims.AccountID()
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		account, err := s.accounts.FindByID(r.Context(), id)
		if err != nil || account.Role != claims.Role {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := AccountFromContext(r.Context())
			if !ok || account.Role != role {
				writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountFromContext returns the authenticated account.
func AccountFromContext(ctx context.Context) (*Account, bool) {
	account, ok := ctx.Value(accountContextKey).(*Account)
	return account, ok
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func decodeJSON(r *http.Request, dst any) bool {
	return json.NewDecoder(r.Body).Decode(dst) == nil
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// writeDetail writes the {"detail": ...} error body the client surfaces.
func writeDetail(w http.ResponseWriter, code int, detail string) {
	respondWithJSON(w, code, map[string]string{"detail": detail})
}
