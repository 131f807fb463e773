package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkivite/knowledgestore-api/pkg/health"
	"github.com/tkivite/knowledgestore-api/pkg/middleware"
)

// RouterConfig holds the router's dependencies.
type RouterConfig struct {
	Service     AuthService
	Health      *health.Handler
	Logger      *slog.Logger
	CORS        middleware.CORSConfig
	ServiceName string
}

// NewRouter creates a chi router with all auth routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	h := NewAuthHandler(cfg.Service, cfg.Logger)
	resolve := NewResolver(cfg.Service)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Get("/verify-email/{token}", h.VerifyEmail)
		r.Post("/resend-verification", h.ResendVerification)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/logout", h.Logout)
		r.Post("/google", h.Google)
		r.Post("/google/callback", h.GoogleCallback)

		r.With(middleware.OptionalAuth(resolve)).Get("/session", h.Session)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(resolve, cfg.Logger))

			r.Get("/me", h.Me)
			r.Post("/logout-all", h.LogoutAll)
		})
	})

	return r
}
