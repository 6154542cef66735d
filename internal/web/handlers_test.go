package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/animeswipe/animeswipe/internal/config"
	"github.com/animeswipe/animeswipe/internal/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers the endpoints the page service calls
type fakeAPI struct {
	mu             sync.Mutex
	sessionBody    string
	sessionStatus  int
	sessionDelay   time.Duration
	profileBody    string
	onboardStatus  int
	cookiesSeen    []string
	onboardedCalls int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{
		sessionBody:   `{"user":null}`,
		sessionStatus: http.StatusOK,
		profileBody:   `{"id":"u1","username":"shinji","is_new_user":false}`,
		onboardStatus: http.StatusNoContent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.cookiesSeen = append(api.cookiesSeen, r.Header.Get("Cookie"))
		body, status, delay := api.sessionBody, api.sessionStatus, api.sessionDelay
		api.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("GET /api/user", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		body := api.profileBody
		api.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.cookiesSeen = append(api.cookiesSeen, r.Header.Get("Cookie"))
		api.mu.Unlock()
		cookie.ClearSession(w)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/user/onboarding", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.onboardedCalls++
		status := api.onboardStatus
		api.mu.Unlock()
		w.WriteHeader(status)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) signedIn(username string, isNew bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionBody = `{"user":{"id":"u1","username":"` + username + `"}}`
	if isNew {
		a.profileBody = `{"id":"u1","username":"` + username + `","is_new_user":true}`
	} else {
		a.profileBody = `{"id":"u1","username":"` + username + `","is_new_user":false}`
	}
}

func newTestRouter(apiURL string, paintDelay time.Duration) http.Handler {
	return NewRouter(NewHandlers(config.WebConfig{
		APIURL:       apiURL,
		ProbeTimeout: 2 * time.Second,
		PaintDelay:   paintDelay,
	}, nil))
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: "token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPageHandler_Settled(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(api *fakeAPI)
		path         string
		wantStatus   int
		wantLocation string
		wantBody     string
	}{
		{
			name:       "anonymous visitor sees the landing page",
			path:       "/",
			wantStatus: http.StatusOK,
			wantBody:   `id="landing"`,
		},
		{
			name:         "anonymous visitor is sent away from home",
			path:         "/home",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/",
		},
		{
			name:         "anonymous visitor is sent away from onboarding",
			path:         "/onboarding",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/",
		},
		{
			name:         "anonymous visitor on an unknown route",
			path:         "/settings",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/",
		},
		{
			name:         "new user lands on onboarding",
			setup:        func(api *fakeAPI) { api.signedIn("rei", true) },
			path:         "/",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/onboarding",
		},
		{
			name:       "new user sees onboarding",
			setup:      func(api *fakeAPI) { api.signedIn("rei", true) },
			path:       "/onboarding",
			wantStatus: http.StatusOK,
			wantBody:   "Welcome, rei",
		},
		{
			name:         "returning user lands on home",
			setup:        func(api *fakeAPI) { api.signedIn("shinji", false) },
			path:         "/",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/home",
		},
		{
			name:       "returning user sees home",
			setup:      func(api *fakeAPI) { api.signedIn("shinji", false) },
			path:       "/home",
			wantStatus: http.StatusOK,
			wantBody:   "Hi, shinji",
		},
		{
			name:       "trailing slash is the same route",
			setup:      func(api *fakeAPI) { api.signedIn("shinji", false) },
			path:       "/home/",
			wantStatus: http.StatusOK,
			wantBody:   "Hi, shinji",
		},
		{
			name:         "signed in user on an unknown route goes home",
			setup:        func(api *fakeAPI) { api.signedIn("shinji", false) },
			path:         "/settings",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/home",
		},
		{
			name: "unavailable API fails closed",
			setup: func(api *fakeAPI) {
				api.sessionStatus = http.StatusServiceUnavailable
			},
			path:         "/home",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/",
		},
		{
			name: "malformed session answer fails closed",
			setup: func(api *fakeAPI) {
				api.sessionBody = `{"user":`
			},
			path:       "/",
			wantStatus: http.StatusOK,
			wantBody:   `id="landing"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			if tt.setup != nil {
				tt.setup(api)
			}
			router := newTestRouter(srv.URL, 5*time.Second)

			w := get(router, tt.path)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
			}
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
				assert.NotContains(t, w.Body.String(), `id="loading"`)
			}
		})
	}
}

func TestPageHandler_ForwardsBrowserCookies(t *testing.T) {
	api, srv := newFakeAPI(t)
	router := newTestRouter(srv.URL, 5*time.Second)

	get(router, "/")

	api.mu.Lock()
	defer api.mu.Unlock()
	require.NotEmpty(t, api.cookiesSeen)
	assert.Equal(t, cookie.SessionCookie+"=token", api.cookiesSeen[0])
}

func TestPageHandler_LoginErrorShownOnce(t *testing.T) {
	_, srv := newFakeAPI(t)
	router := newTestRouter(srv.URL, 5*time.Second)

	w := get(router, "/?error=invalid_state")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, strings.Count(w.Body.String(), "Invalid session, please retry."))
	assert.Contains(t, w.Body.String(), `role="alert"`)
}

func TestPageHandler_LoginErrorCodes(t *testing.T) {
	_, srv := newFakeAPI(t)
	router := newTestRouter(srv.URL, 5*time.Second)

	tests := map[string]string{
		"cancelled":      "You cancelled the MAL login.",
		"missing_params": "Something went wrong. Try logging in again.",
		"long_wait":      "Login took too long. Please try again.",
		"login_failed":   "Login failed.",
		"whatever":       "Login failed.",
	}
	for code, want := range tests {
		t.Run(code, func(t *testing.T) {
			w := get(router, "/?error="+code)
			assert.Contains(t, w.Body.String(), want)
		})
	}

	w := get(router, "/")
	assert.NotContains(t, w.Body.String(), `role="alert"`)
}

func TestPageHandler_StreamsLoadingShell(t *testing.T) {
	t.Run("navigation follows the shell", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		api.sessionDelay = 100 * time.Millisecond
		router := newTestRouter(srv.URL, time.Millisecond)

		w := get(router, "/home")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, w.Flushed)
		body := w.Body.String()
		loading := strings.Index(body, `id="loading"`)
		navigate := strings.Index(body, "window.location.replace(")
		require.GreaterOrEqual(t, loading, 0)
		require.Greater(t, navigate, loading)
		assert.Contains(t, body, `content="0;url=/"`)
		assert.NotContains(t, body, `id="home"`)
		assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "</html>"))
	})

	t.Run("content follows the shell", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		api.signedIn("shinji", false)
		api.sessionDelay = 100 * time.Millisecond
		router := newTestRouter(srv.URL, time.Millisecond)

		w := get(router, "/home")

		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		loading := strings.Index(body, `id="loading"`)
		home := strings.Index(body, "Hi, shinji")
		loaded := strings.Index(body, "#loading{display:none}")
		require.GreaterOrEqual(t, loading, 0)
		assert.Greater(t, home, loading)
		assert.Greater(t, loaded, home)
		assert.NotContains(t, body, "window.location.replace(")
	})
}

func TestPageHandler_MethodNotAllowed(t *testing.T) {
	_, srv := newFakeAPI(t)
	h := NewHandlers(config.WebConfig{APIURL: srv.URL, PaintDelay: time.Second}, nil)

	w := httptest.NewRecorder()
	h.PageHandler(w, httptest.NewRequest(http.MethodPut, "/", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
}

func TestLoginHandler(t *testing.T) {
	router := newTestRouter("http://localhost:8000", time.Second)

	w := get(router, "/login")

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "http://localhost:8000/oauth", w.Header().Get("Location"))
}

func TestLogoutHandler(t *testing.T) {
	api, srv := newFakeAPI(t)
	router := newTestRouter(srv.URL, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: "token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	var cleared *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cookie.SessionCookie {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Contains(t, api.cookiesSeen, cookie.SessionCookie+"=token")
}

func TestOnboardingHandler(t *testing.T) {
	tests := []struct {
		name         string
		apiStatus    int
		wantLocation string
	}{
		{name: "completed", apiStatus: http.StatusNoContent, wantLocation: "/home"},
		{name: "no session", apiStatus: http.StatusUnauthorized, wantLocation: "/"},
		{name: "api failure", apiStatus: http.StatusInternalServerError, wantLocation: "/onboarding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			api.onboardStatus = tt.apiStatus
			router := newTestRouter(srv.URL, time.Second)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/onboarding", nil))

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
			api.mu.Lock()
			assert.Equal(t, 1, api.onboardedCalls)
			api.mu.Unlock()
		})
	}

	t.Run("api unreachable", func(t *testing.T) {
		_, srv := newFakeAPI(t)
		srv.Close()
		router := newTestRouter(srv.URL, time.Second)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/onboarding", nil))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/onboarding", w.Header().Get("Location"))
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter("http://localhost:8000", time.Second)

	w := get(router, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
}
