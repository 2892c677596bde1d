// Package httpapi exposes the meal tracker over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"calorieTracker/internal/auth"
	"calorieTracker/internal/imagestore"
	"calorieTracker/internal/logging"
	"calorieTracker/repository"
)

// UploadURLPrefix is where locally stored images are served.
const UploadURLPrefix = "/uploads/meals"

// Assistant answers free-form questions about a user's meals. token is a
// short-lived credential for the meal query server, scoped to userID.
type Assistant interface {
	Ask(ctx context.Context, query string, userID int64, token string) (string, error)
}

// DefaultAssistantTokenTTL bounds the credential handed to the assistant.
const DefaultAssistantTokenTTL = 5 * time.Minute

// Deps are the collaborators the API needs.
type Deps struct {
	Users     repository.UserRepositoryI
	Meals     repository.MealRepositoryI
	Tokens    *auth.TokenManager
	Passwords auth.PasswordScheme
	Images    imagestore.Store
	Assistant Assistant
	Log       logging.Logger

	CookieSecure   bool
	MaxUploadBytes int64
	// UploadDir, when set, is served read-only under UploadURLPrefix.
	UploadDir   string
	CORSOrigins []string
	StartedAt   time.Time
	// AssistantTokenTTL is the lifetime of tokens minted for the assistant.
	AssistantTokenTTL time.Duration
}

// API owns the HTTP handlers.
type API struct {
	deps  Deps
	guard *auth.SessionGuard
	// dummyHash is compared against for unknown usernames so a failed login
	// costs the same whether or not the user exists.
	dummyHash string
}

// New builds the API, filling in defaults for optional deps.
func New(deps Deps) *API {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 5 << 20
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	if deps.AssistantTokenTTL <= 0 {
		deps.AssistantTokenTTL = DefaultAssistantTokenTTL
	}
	if deps.Passwords == nil {
		deps.Passwords = auth.BcryptScheme{}
	}
	a := &API{deps: deps}
	if h, err := deps.Passwords.Hash("calorie-tracker-dummy-password"); err == nil {
		a.dummyHash = h
	}
	a.guard = auth.NewSessionGuard(deps.Tokens, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: msgUnauthorized})
	}))
	return a
}

// Routes returns the router with the full middleware stack.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(a.deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors(a.deps.CORSOrigins))

	r.Get("/healthz", a.handle(a.handleHealth))
	if a.deps.UploadDir != "" {
		fs := http.StripPrefix(UploadURLPrefix+"/", http.FileServer(http.Dir(a.deps.UploadDir)))
		r.Get(UploadURLPrefix+"/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			fs.ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", a.handle(a.handleRegister))
		r.Post("/auth/login", a.handle(a.handleLogin))
		r.Post("/auth/logout", a.handle(a.handleLogout))
		r.Get("/auth/check", a.handle(a.handleAuthCheck))

		r.Group(func(r chi.Router) {
			r.Use(a.guard.Middleware)
			r.Get("/meals", a.handle(a.handleListMeals))
			r.Post("/meals", a.handle(a.handleCreateMeal))
			r.Get("/meals/summary", a.handle(a.handleMealSummary))
			r.Delete("/meals/{id}", a.handle(a.handleDeleteMeal))
			r.Post("/upload", a.handle(a.handleUpload))
			r.Post("/chatbot", a.handle(a.handleChatbot))
		})
	})
	return r
}

func (a *API) handle(h appHandler) http.HandlerFunc {
	return makeHandler(a.deps.Log, h)
}

// currentUser returns the principal bound by the session guard.
func currentUser(r *http.Request) (*auth.Principal, error) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, ErrUnauthorized("")
	}
	return p, nil
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(a.deps.StartedAt).Truncate(time.Second).String(),
	})
	return nil
}
