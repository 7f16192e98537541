package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openline-hq/caseguard/internal/core/config"
	"github.com/openline-hq/caseguard/internal/metrics"
	"github.com/openline-hq/caseguard/internal/store"
)

// NewRouter wires all HTTP routes for the case API.
func NewRouter(cfg *config.ServerConfig, h *Handler, st *store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(metrics.Middleware())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/v1/accounts/{accountSid}", func(r chi.Router) {
		r.Use(ViewerContext)

		r.Post("/cases", h.CreateCase)
		r.Post("/cases/search", h.SearchCases)
		r.Get("/cases/{caseId}", h.GetCase)
		r.Put("/cases/{caseId}/status", h.UpdateStatus)
		r.Put("/cases/{caseId}/overview", h.UpdateOverview)
		r.Post("/cases/{caseId}/contacts", h.ConnectContact)
		r.Post("/cases/{caseId}/sections", h.AddSection)
	})

	return r
}
