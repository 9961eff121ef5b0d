package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcnelson/opnsense-access-control/internal/api/handler"
	"github.com/bcnelson/opnsense-access-control/internal/api/middleware"
	"github.com/bcnelson/opnsense-access-control/internal/service"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	accessService *service.AccessService,
	gatherer prometheus.Gatherer,
	apiToken string,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Logging)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(apiToken))

		switchHandler := handler.NewSwitchHandler(accessService)
		r.Get("/switches", switchHandler.List)
		r.Route("/switches/{name}", func(r chi.Router) {
			r.Get("/", switchHandler.Get)
			r.Post("/on", switchHandler.On)
			r.Post("/off", switchHandler.Off)
			r.Post("/refresh", switchHandler.Refresh)
			r.Post("/reload", switchHandler.Reload)
		})

		historyHandler := handler.NewHistoryHandler(accessService)
		r.Get("/history", historyHandler.List)
	})

	return r
}
