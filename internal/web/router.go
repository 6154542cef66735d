package web

import (
	"net/http"

	"github.com/animeswipe/animeswipe/internal/bootstrap"
	"github.com/animeswipe/animeswipe/internal/server"
	"github.com/go-chi/chi/v5"
)

// NewRouter builds the page service's routes. Every path that is not an
// action goes through the bootstrap and the gate.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(
		server.NewRequestIDMiddleware(),
		server.NewLoggerMiddleware("web"),
		server.NewRecoverMiddleware("web"),
	)

	r.Method(http.MethodGet, "/health", server.NewHealthHandler())
	r.Get("/login", h.LoginHandler)
	r.Post("/logout", h.LogoutHandler)
	r.Post(bootstrap.RouteOnboarding, h.OnboardingHandler)

	for _, route := range []string{bootstrap.RouteLanding, bootstrap.RouteHome, bootstrap.RouteOnboarding} {
		r.Get(route, h.PageHandler)
		r.Head(route, h.PageHandler)
	}
	r.NotFound(h.PageHandler)

	return r
}
