package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the query routes and, when registry is non-nil, /metrics.
func NewRouter(h *Handler, allowedOrigins []string, registry *prometheus.Registry) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics", h.Metrics)
		r.Get("/breakdown", h.Breakdown)
		r.Get("/breakdown/players", h.PlayerBreakdown)
		r.Get("/timeseries", h.TimeSeries)
		r.Get("/anomalies", h.AnomalyHistory)
		r.Route("/markets", func(r chi.Router) {
			r.Get("/", h.Markets)
			r.Get("/{marketID}", h.Market)
			r.Get("/{marketID}/efficiency", h.MarketEfficiency)
			r.Get("/{marketID}/anomalies", h.MarketAnomalies)
		})
	})
	return r
}
