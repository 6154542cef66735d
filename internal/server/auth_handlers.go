package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/animeswipe/animeswipe/internal/config"
	"github.com/animeswipe/animeswipe/internal/cookie"
	"github.com/animeswipe/animeswipe/internal/crypto"
	"github.com/animeswipe/animeswipe/internal/idp"
	jsonwriter "github.com/animeswipe/animeswipe/internal/json"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/loginerr"
	"github.com/animeswipe/animeswipe/internal/session"
	"github.com/animeswipe/animeswipe/internal/storage"
	"github.com/animeswipe/animeswipe/internal/urlutil"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const exchangeTimeout = 30 * time.Second

// AuthHandlers runs the MyAnimeList OAuth round-trip
type AuthHandlers struct {
	provider     idp.Provider
	storage      storage.Storage
	sessions     *session.Manager
	webBaseURL   string
	loginTimeout time.Duration

	syncGroup singleflight.Group
	now       func() time.Time
}

type syncResult struct {
	user    *storage.User
	created bool
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(
	provider idp.Provider,
	store storage.Storage,
	sessions *session.Manager,
	authConfig config.AuthConfig,
	webBaseURL string,
) *AuthHandlers {
	return &AuthHandlers{
		provider:     provider,
		storage:      store,
		sessions:     sessions,
		webBaseURL:   webBaseURL,
		loginTimeout: authConfig.LoginTimeout,
		now:          time.Now,
	}
}

// OAuthHandler records a pending login and sends the browser to MAL's
// consent page
func (h *AuthHandlers) OAuthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogError("Failed to generate OAuth state: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}
	verifier, err := crypto.GenerateCodeVerifier()
	if err != nil {
		log.LogError("Failed to generate PKCE verifier: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	req := &storage.LoginRequest{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    h.now(),
	}
	if err := h.storage.SaveLoginRequest(ctx, req); err != nil {
		log.LogErrorWithFields("auth", "Failed to save login request", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	log.LogDebugWithFields("auth", "Starting MAL login", map[string]any{
		"provider": h.provider.Type(),
	})
	http.Redirect(w, r, h.provider.AuthURL(state, verifier), http.StatusFound)
}

// CallbackHandler completes the round-trip. Every failure sends the browser
// back to the landing page with an ?error= code.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		code := loginerr.ProviderError
		if providerErr == "access_denied" {
			code = loginerr.Cancelled
		}
		log.LogInfoWithFields("auth", "MAL returned an error", map[string]any{
			"error":       providerErr,
			"description": query.Get("error_description"),
		})
		h.redirectError(w, r, code)
		return
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		log.LogWarnWithFields("auth", "Callback without code or state", nil)
		h.redirectError(w, r, loginerr.MissingParams)
		return
	}

	req, err := h.storage.TakeLoginRequest(r.Context(), state)
	if err != nil {
		if errors.Is(err, storage.ErrLoginRequestNotFound) {
			log.LogWarnWithFields("auth", "Callback with unknown state", nil)
			h.redirectError(w, r, loginerr.InvalidState)
			return
		}
		log.LogErrorWithFields("auth", "Failed to load login request", map[string]any{
			"error": err.Error(),
		})
		h.redirectError(w, r, loginerr.LoginFailed)
		return
	}
	if req.Expired(h.now(), h.loginTimeout) {
		log.LogInfoWithFields("auth", "Login request expired", map[string]any{
			"age": h.now().Sub(req.CreatedAt).Round(time.Second).String(),
		})
		h.redirectError(w, r, loginerr.LongWait)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	token, err := h.provider.ExchangeCode(ctx, code, req.CodeVerifier)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to exchange code", map[string]any{
			"error": err.Error(),
		})
		h.redirectError(w, r, loginerr.LoginFailed)
		return
	}

	info, err := h.provider.UserInfo(ctx, token)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to fetch MAL profile", map[string]any{
			"error": err.Error(),
		})
		h.redirectError(w, r, loginerr.LoginFailed)
		return
	}

	user, created, err := h.syncUser(ctx, info)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to sync user", map[string]any{
			"mal_id": info.ID,
			"error":  err.Error(),
		})
		h.redirectError(w, r, loginerr.LoginFailed)
		return
	}
	h.storeProviderToken(ctx, user.ID, token)

	signed, err := h.sessions.Issue(user.ID, user.Username)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to issue session", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		h.redirectError(w, r, loginerr.LoginFailed)
		return
	}
	cookie.SetSession(w, signed, h.sessions.TTL())

	log.LogInfoWithFields("auth", "User logged in", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"created":  created,
	})
	http.Redirect(w, r, urlutil.MustJoinPath(h.webBaseURL, "home"), http.StatusFound)
}

// syncUser provisions or refreshes the user for a MAL profile. Concurrent
// callbacks for the same MAL account share one upsert.
func (h *AuthHandlers) syncUser(ctx context.Context, info *idp.UserInfo) (*storage.User, bool, error) {
	key := strconv.FormatInt(info.ID, 10)
	v, err, _ := h.syncGroup.Do(key, func() (any, error) {
		user, created, err := h.storage.UpsertMALUser(ctx, storage.MALProfile{
			ID:      info.ID,
			Name:    info.Name,
			Picture: info.Picture,
		})
		if err != nil {
			return nil, err
		}
		return syncResult{user: user, created: created}, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("upserting MAL user %s: %w", key, err)
	}
	res := v.(syncResult)
	return res.user, res.created, nil
}

// storeProviderToken keeps the MAL tokens for later API calls. A failure
// does not block the login.
func (h *AuthHandlers) storeProviderToken(ctx context.Context, userID string, token *oauth2.Token) {
	err := h.storage.SetProviderToken(ctx, userID, &storage.ProviderToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		UpdatedAt:    h.now(),
	})
	if err != nil {
		log.LogWarnWithFields("auth", "Failed to store MAL token", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

func (h *AuthHandlers) redirectError(w http.ResponseWriter, r *http.Request, code loginerr.Code) {
	target, err := urlutil.WithQuery(urlutil.MustJoinPath(h.webBaseURL), "error", string(code))
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Login failed")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
