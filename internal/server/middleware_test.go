package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/animeswipe/animeswipe/internal/cookie"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/session"
	"github.com/animeswipe/animeswipe/internal/usercontext"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		allowedOrigins    []string
		method            string
		requestOrigin     string
		expectAllowOrigin string
		expectCredentials bool
	}{
		{
			name:              "allowed origin",
			allowedOrigins:    []string{"http://localhost:5173"},
			method:            http.MethodGet,
			requestOrigin:     "http://localhost:5173",
			expectAllowOrigin: "http://localhost:5173",
			expectCredentials: true,
		},
		{
			name:           "disallowed origin",
			allowedOrigins: []string{"http://localhost:5173"},
			method:         http.MethodGet,
			requestOrigin:  "https://evil.com",
		},
		{
			name:           "no origin header",
			allowedOrigins: []string{"http://localhost:5173"},
			method:         http.MethodGet,
		},
		{
			name:              "preflight request",
			allowedOrigins:    []string{"http://localhost:5173"},
			method:            http.MethodOptions,
			requestOrigin:     "http://localhost:5173",
			expectAllowOrigin: "http://localhost:5173",
			expectCredentials: true,
		},
		{
			name:              "no origins configured",
			allowedOrigins:    nil,
			method:            http.MethodGet,
			requestOrigin:     "https://anywhere.example",
			expectAllowOrigin: "*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCORSMiddleware(tt.allowedOrigins)(okHandler)

			req := httptest.NewRequest(tt.method, "/api/session", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectAllowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectCredentials {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = usercontext.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, incoming, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(nil) })

	handler := NewLoggerMiddleware("api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/oauth/callback?code=secret", nil))

	out := buf.String()
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "bytes=15")
	assert.NotContains(t, out, "code=secret")
}

func TestRecoverMiddleware(t *testing.T) {
	handler := NewRecoverMiddleware("api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_server_error")
}

func TestSessionMiddleware(t *testing.T) {
	sessions, err := session.NewManager([]byte(strings.Repeat("k", 32)), time.Hour)
	require.NoError(t, err)
	other, err := session.NewManager([]byte(strings.Repeat("o", 32)), time.Hour)
	require.NoError(t, err)

	var user usercontext.User
	var found bool
	handler := NewSessionMiddleware(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, found = usercontext.GetUser(r.Context())
	}))

	valid, err := sessions.Issue("u-1", "misato")
	require.NoError(t, err)
	foreign, err := other.Issue("u-1", "misato")
	require.NoError(t, err)

	tests := []struct {
		name        string
		cookieValue string
		wantUser    bool
		wantCleared bool
	}{
		{name: "no cookie"},
		{name: "valid", cookieValue: valid, wantUser: true},
		{name: "garbage", cookieValue: "garbage", wantCleared: true},
		{name: "signed with another key", cookieValue: foreign, wantCleared: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found = false
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.cookieValue != "" {
				req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: tt.cookieValue})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantUser, found)
			if tt.wantUser {
				assert.Equal(t, usercontext.User{ID: "u-1", Username: "misato"}, user)
			}
			assert.Equal(t, tt.wantCleared, sessionCookie(w) != nil)
		})
	}
}

func TestRequireSession(t *testing.T) {
	handler := RequireSession(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req = req.WithContext(usercontext.WithUser(req.Context(), usercontext.User{ID: "u-1"}))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChainMiddleware(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	ChainMiddleware(okHandler, mw("inner"), mw("outer")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}
