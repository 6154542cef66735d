package server

import (
	"errors"
	"net/http"

	"github.com/animeswipe/animeswipe/internal/cookie"
	jsonwriter "github.com/animeswipe/animeswipe/internal/json"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/storage"
	"github.com/animeswipe/animeswipe/internal/usercontext"
)

// SessionUser is the user object of /api/session
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SessionResponse is the body of /api/session. User is null without a session.
type SessionResponse struct {
	User *SessionUser `json:"user"`
}

// UserResponse is the body of /api/user
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
	IsNewUser bool   `json:"is_new_user"`
}

// SessionHandlers serves the session and profile endpoints
type SessionHandlers struct {
	users storage.UserStore
}

// NewSessionHandlers creates the session endpoint handlers
func NewSessionHandlers(users storage.UserStore) *SessionHandlers {
	return &SessionHandlers{users: users}
}

// SessionHandler answers who the browser is. It never fails with 401: an
// anonymous browser gets {"user": null}.
func (h *SessionHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := usercontext.GetUser(r.Context())
	if !ok {
		_ = jsonwriter.Write(w, SessionResponse{})
		return
	}

	user, err := h.users.GetUser(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.LogWarnWithFields("session", "Session refers to a missing user", map[string]any{
				"user_id": principal.ID,
			})
			cookie.ClearSession(w)
			_ = jsonwriter.Write(w, SessionResponse{})
			return
		}
		log.LogErrorWithFields("session", "Failed to load session user", map[string]any{
			"user_id": principal.ID,
			"error":   err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Session lookup failed")
		return
	}

	_ = jsonwriter.Write(w, SessionResponse{User: &SessionUser{ID: user.ID, Username: user.Username}})
}

// UserHandler returns the profile of the session user
func (h *SessionHandlers) UserHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := usercontext.GetUserID(r.Context())

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			cookie.ClearSession(w)
			jsonwriter.WriteUnauthorized(w, "Not authenticated")
			return
		}
		log.LogErrorWithFields("session", "Failed to load user", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to load user")
		return
	}

	_ = jsonwriter.Write(w, UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Avatar:    user.Avatar,
		IsNewUser: user.IsNewUser(),
	})
}

// OnboardingHandler marks the session user as onboarded
func (h *SessionHandlers) OnboardingHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := usercontext.GetUserID(r.Context())

	if err := h.users.CompleteOnboarding(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			jsonwriter.WriteUnauthorized(w, "Not authenticated")
			return
		}
		log.LogErrorWithFields("session", "Failed to complete onboarding", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to complete onboarding")
		return
	}

	log.LogInfoWithFields("session", "User completed onboarding", map[string]any{
		"user_id": userID,
	})
	jsonwriter.WriteNoContent(w)
}

// LogoutHandler clears the session cookie
func (h *SessionHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if userID, ok := usercontext.GetUserID(r.Context()); ok {
		log.LogInfoWithFields("session", "User logged out", map[string]any{
			"user_id": userID,
		})
	}
	cookie.ClearSession(w)
	jsonwriter.WriteNoContent(w)
}
