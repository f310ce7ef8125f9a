/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Wires URLs to handlers with chi and sets up the middleware stack:
  request IDs, panic recovery, structured request logging (zap), and
  CORS for local frontends.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mattrap/TipSplit-sub000/logger"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.CreateSchedule)
			r.Get("/active", h.GetActiveSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.Post("/{id}/periods/ensure", h.EnsurePeriods)
			r.Get("/{id}/periods", h.ListSchedulePeriods)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/{id}", h.GetPeriod)
			r.Post("/{id}/lock", h.LockPeriod)
			r.Post("/{id}/pay", h.PayPeriod)
			r.Post("/{id}/override", h.OverridePeriod)
			r.Get("/{id}/overrides", h.ListOverrides)
		})

		// Operations scoped to the configured group
		r.Route("/group", func(r chi.Router) {
			r.Get("/periods", h.ListGroupPeriods)
			r.Get("/periods/{id}", h.GetGroupPeriod)
			r.Get("/period-for-date", h.PeriodForDate)
			r.Get("/current-period", h.CurrentPeriod)
			r.Post("/ensure-window", h.EnsureWindow)
			r.Post("/periods/{id}/distributions", h.RecordDistribution)
			r.Post("/bootstrap", h.Bootstrap)
		})
	})

	return r
}

// requestLogger logs each request with method, path, status, and timing.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.Get().Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
