package server

import (
	"net/http"
	"time"

	"github.com/animeswipe/animeswipe/internal/config"
	jsonwriter "github.com/animeswipe/animeswipe/internal/json"
	"github.com/animeswipe/animeswipe/internal/session"
	"github.com/go-chi/chi/v5"
)

// APIDeps are the collaborators of the API router
type APIDeps struct {
	Auth     *AuthHandlers
	Session  *SessionHandlers
	Sessions *session.Manager
}

// NewAPIRouter builds the API service's routes
func NewAPIRouter(cfg config.Config, deps APIDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		NewRequestIDMiddleware(),
		NewLoggerMiddleware("api"),
		NewRecoverMiddleware("api"),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "Not found")
	})

	r.Method(http.MethodGet, "/health", NewHealthHandler())

	r.With(NewRateLimitMiddleware(cfg.Auth.LoginRateLimit, time.Minute)).
		Get("/oauth", deps.Auth.OAuthHandler)
	r.Get("/oauth/callback", deps.Auth.CallbackHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(
			NewCORSMiddleware(cfg.API.AllowedOrigins),
			NewSessionMiddleware(deps.Sessions),
		)
		r.Get("/session", deps.Session.SessionHandler)
		r.Post("/logout", deps.Session.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession)
			r.Get("/user", deps.Session.UserHandler)
			r.Post("/user/onboarding", deps.Session.OnboardingHandler)
		})
	})

	return r
}
