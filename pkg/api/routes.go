package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	trusted, err := s.cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		s.log.WithError(err).Warn("Ignoring trusted proxies; X-Forwarded-For will not be honoured")
	}

	s.trustedProxies = trusted

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Group(func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Public,
				))
			}

			r.Get("/health", s.handleHealth)
			r.Get("/config", s.handleConfig)
		})

		// Auth endpoints.
		r.Route("/auth", func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Auth,
				))
			}

			r.Get("/captcha", s.handleCaptcha)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePrimary)
				r.Get("/me", s.handleMe)
				r.Post("/dashboard", s.handleDashboardLogin)
			})
		})

		// Admin endpoints (require a superadmin session + dashboard token).
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireDashboard)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Admin,
				))
			}

			r.Get("/dashboard", s.handleDashboardData)
			r.Get("/security", s.handleSecurityStats)
			r.Post("/codes/{code}/revoke", s.handleRevokeCode)

			if s.store != nil {
				r.Get("/audit/attempts", s.handleListLoginAttempts)
				r.Get("/audit/actions", s.handleListAdminActions)
			}
		})
	})

	if s.registry != nil {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(
			s.registry, promhttp.HandlerOpts{},
		))
	}

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type", "Authorization", dashboardTokenHeader,
		},
		MaxAge: 300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
