package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the status server router: unauthenticated health checks
// and the /api routes behind the optional bearer token. events, if non-nil,
// is mounted at GET /api/events.
func NewRouter(src StatusSource, token string, events http.Handler) chi.Router {
	h := NewHandler(src)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireToken(token))
		r.Get("/report", h.Report)
		if events != nil {
			r.Get("/events", events.ServeHTTP)
		}
	})

	return r
}
