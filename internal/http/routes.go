package httpx

import (
	"log/slog"
	"net/http"

	"github.com/accountdesk/accountdesk/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions *service.SessionStore
	Auth     *service.AuthService
	Profiles *service.ProfileService
	Admin    *service.AdminService
	Notices  *service.NoticeBoard
	// Metrics serves /metrics when set.
	Metrics        http.Handler
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter creates the console API router wrapped in the standard middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	registerSessionRoutes(mux, NewSessionHandlers(services.Sessions, services.AllowedOrigins, logger))
	registerAuthRoutes(mux, &AuthHandlers{Svc: services.Auth, Logger: logger}, services.Sessions)
	registerProfileRoutes(mux, &ProfileHandlers{Svc: services.Profiles}, services.Sessions)
	registerAdminRoutes(mux, &AdminHandlers{Svc: services.Admin}, services.Sessions)
	if services.Notices != nil {
		nh := &NoticeHandlers{Board: services.Notices}
		mux.HandleFunc("GET /notices", nh.Get)
		mux.HandleFunc("DELETE /notices", nh.Dismiss)
	}

	var h http.Handler = mux
	h = Logging(logger)(h)
	h = Recover(logger)(h)
	h = RequestID()(h)
	return h
}

func registerSessionRoutes(mux *http.ServeMux, h *SessionHandlers) {
	mux.HandleFunc("GET /session", h.Get)
	mux.HandleFunc("GET /session/stream", h.Stream)
}

// Sign-in, sign-up and reset are reachable while signed out; the service
// layer enforces its own preconditions.
func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, states StateReader) {
	mux.HandleFunc("POST /auth/sign-in", h.SignIn)
	mux.HandleFunc("POST /auth/sign-up", h.SignUp)
	mux.HandleFunc("POST /auth/sign-out", h.SignOut)
	mux.HandleFunc("POST /auth/password-reset", h.PasswordReset)
	mux.Handle("POST /auth/password", RequireAuth(states)(http.HandlerFunc(h.ChangePassword)))
}

func registerProfileRoutes(mux *http.ServeMux, h *ProfileHandlers, states StateReader) {
	auth := RequireAuth(states)
	mux.Handle("GET /profile", auth(http.HandlerFunc(h.Get)))
	mux.Handle("PATCH /profile", auth(http.HandlerFunc(h.Update)))
	mux.Handle("PUT /profile/avatar", auth(http.HandlerFunc(h.SetAvatar)))
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers, states StateReader) {
	admin := RequireAdmin(states)
	mux.Handle("GET /admin/profiles", admin(http.HandlerFunc(h.List)))
	mux.Handle("PATCH /admin/profiles/{id}", admin(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /admin/profiles/{id}", admin(http.HandlerFunc(h.Delete)))
	mux.Handle("GET /admin/stats", admin(http.HandlerFunc(h.Stats)))
}
