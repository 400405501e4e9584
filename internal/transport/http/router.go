package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-otp-link/internal/config"
	"github.com/go-otp-link/internal/transport/http/handler"
	appmiddleware "github.com/go-otp-link/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. All flow routes are
// mounted under cfg.BasePath so the module can sit next to an embedding
// application's own routes.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if deps.Registry != nil {
		metrics := appmiddleware.NewMetrics(deps.Registry)
		r.Use(metrics.Handler)
	}

	// Submission and callback endpoints mint tokens and send email, so they
	// get a per-IP limiter.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	authMw := appmiddleware.Auth(deps.Sessions)

	otpH := handler.NewOTPHandler(deps.Service, deps.Renderer, deps.Host, deps.Sessions)
	sessionH := handler.NewSessionHandler()
	healthH := handler.NewHealthHandler()

	r.Get("/healthz", healthH.Ping)
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route(cfg.BasePath, func(r chi.Router) {
		r.Get("/register", otpH.ShowRegisterForm)
		r.Get("/login", otpH.ShowLoginForm)
		r.With(sensitiveRL.Limit).Post("/register", otpH.Register)
		r.With(sensitiveRL.Limit).Post("/login", otpH.Login)
		r.With(sensitiveRL.Limit).Get("/auth", otpH.Authenticate)
		r.With(sensitiveRL.Limit).Get("/verify", otpH.Verify)

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Get("/session", sessionH.GetCurrent)
		})
	})

	return r
}
