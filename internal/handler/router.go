package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every public route.
func NewRouter(h *HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/reviews", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/", h.HandleListReviews)
		r.Get("/{id}", h.HandleGetReview)
		r.Post("/{id}/retry", h.HandleRetry)
	})
	r.Get("/jobs/{id}", h.HandleGetJob)

	r.Get("/analytics/summary", h.HandleSummary)
	r.Get("/insights", h.HandleInsights)
	r.Get("/ws", h.HandleWebsocket)

	return r
}
