package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/almanac/internal/auth"
	"gitea.jw6.us/james/almanac/internal/config"
	"gitea.jw6.us/james/almanac/internal/http/csrf"
	"gitea.jw6.us/james/almanac/internal/http/ratelimit"
	"gitea.jw6.us/james/almanac/internal/metrics"
	"gitea.jw6.us/james/almanac/internal/store"
)

// NewRouter wires the health, auth, and API routes.
func NewRouter(cfg *config.Config, st *store.Store, authService *auth.Service, api *API) http.Handler {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authLimiter := ratelimit.New(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// API endpoints: 20 requests per second, burst of 50 (calendar views
	// issue bursts of window queries)
	apiLimiter := ratelimit.New(rate.Limit(20), 50, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(authLimiter.Middleware())
		r.Get("/login", authService.BeginLogin)
		r.Get("/callback", authService.HandleCallback)
	})
	r.With(authService.RequireSession).Post("/auth/logout", authService.Logout)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLimiter.Middleware())
		r.Use(authService.RequireSession)
		r.Use(csrf.Middleware(cfg))

		r.Get("/event", api.List)
		r.Get("/event/{id}", api.Get)
		r.Post("/event", api.Create)
		r.Put("/event", api.Update)
		r.Delete("/event", api.Delete)

		r.Get("/calendar.ics", api.Feed)
	})

	return r
}
