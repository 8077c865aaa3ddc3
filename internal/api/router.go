package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ms-passbot/internal/auth"
)

// NewRouter mounts health and metrics publicly and the scanner API behind
// scanner tokens.
func NewRouter(h *Handler, tokens *auth.Tokens) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokens, h.Logger))

		r.Route("/api", func(r chi.Router) {
			r.Get("/events", h.ListEvents)
			r.Get("/events/{date}/checkins/stream", h.StreamCheckins)
			r.Post("/checkins/{code}", h.Checkin)
		})
	})
	return r
}
