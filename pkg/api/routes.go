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
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Server.RateLimit.Enabled {
			r.Use(s.rateLimitMiddleware(
				s.cfg.Server.RateLimit.RequestsPerMinute,
			))
		}

		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/recent", s.handleRecent)
		r.Get("/scanner/status", s.handleScannerStatus)

		if s.cfg.Server.DevEndpoints {
			r.Post("/seed-sample", s.handleSeedSample)
		}
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		s.registry, promhttp.HandlerOpts{},
	))

	return r
}

// corsMiddleware configures CORS for the dashboard origin list. An
// empty list allows any origin, matching a dashboard served from
// another host on the factory network.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}
