package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/animeswipe/animeswipe/internal/config"
	"github.com/animeswipe/animeswipe/internal/cookie"
	"github.com/animeswipe/animeswipe/internal/idp"
	"github.com/animeswipe/animeswipe/internal/session"
	"github.com/animeswipe/animeswipe/internal/storage"
	"github.com/animeswipe/animeswipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testWebURL = "http://localhost:5173"

type apiFixture struct {
	store    *storage.MemoryStorage
	provider *testutil.MockProvider
	sessions *session.Manager
	auth     *AuthHandlers
	router   http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := config.Config{
		API: config.APIConfig{
			Addr:           ":0",
			BaseURL:        "http://localhost:8000",
			AllowedOrigins: []string{testWebURL},
		},
		Web: config.WebConfig{BaseURL: testWebURL},
		Auth: config.AuthConfig{
			LoginTimeout:    10 * time.Minute,
			SessionDuration: time.Hour,
			LoginRateLimit:  100,
		},
	}

	store := storage.NewMemoryStorage()
	provider := &testutil.MockProvider{}
	provider.On("Type").Return("mal").Maybe()

	sessions, err := session.NewManager([]byte(strings.Repeat("s", 32)), time.Hour)
	require.NoError(t, err)

	auth := NewAuthHandlers(provider, store, sessions, cfg.Auth, testWebURL)
	router := NewAPIRouter(cfg, APIDeps{
		Auth:     auth,
		Session:  NewSessionHandlers(store),
		Sessions: sessions,
	})

	return &apiFixture{store: store, provider: provider, sessions: sessions, auth: auth, router: router}
}

func (f *apiFixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func (f *apiFixture) pendingLogin(t *testing.T, state string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, f.store.SaveLoginRequest(context.Background(), &storage.LoginRequest{
		State:        state,
		CodeVerifier: "verifier-" + state,
		CreatedAt:    createdAt,
	}))
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == cookie.SessionCookie {
			return c
		}
	}
	return nil
}

func TestOAuthHandler(t *testing.T) {
	f := newAPIFixture(t)

	var gotState, gotVerifier string
	f.provider.On("AuthURL", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotState = args.String(0)
			gotVerifier = args.String(1)
		}).
		Return("https://myanimelist.net/v1/oauth2/authorize?state=x")

	w := f.do(httptest.NewRequest(http.MethodGet, "/oauth", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://myanimelist.net/v1/oauth2/authorize?state=x", w.Header().Get("Location"))
	require.NotEmpty(t, gotState)
	assert.GreaterOrEqual(t, len(gotVerifier), 43)

	req, err := f.store.TakeLoginRequest(context.Background(), gotState)
	require.NoError(t, err)
	assert.Equal(t, gotVerifier, req.CodeVerifier)
	assert.WithinDuration(t, time.Now(), req.CreatedAt, time.Minute)
}

func TestCallbackHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		setup    func(t *testing.T, f *apiFixture)
		wantCode string
	}{
		{
			name:     "user denied consent",
			query:    "error=access_denied&state=s1",
			wantCode: "cancelled",
		},
		{
			name:     "other provider error",
			query:    "error=server_error&error_description=boom",
			wantCode: "provider_error",
		},
		{
			name:     "missing code",
			query:    "state=s1",
			wantCode: "missing_params",
		},
		{
			name:     "missing state",
			query:    "code=abc",
			wantCode: "missing_params",
		},
		{
			name:     "unknown state",
			query:    "code=abc&state=forged",
			wantCode: "invalid_state",
		},
		{
			name:  "login took too long",
			query: "code=abc&state=old",
			setup: func(t *testing.T, f *apiFixture) {
				f.pendingLogin(t, "old", time.Now().Add(-11*time.Minute))
			},
			wantCode: "long_wait",
		},
		{
			name:  "code exchange fails",
			query: "code=abc&state=s1",
			setup: func(t *testing.T, f *apiFixture) {
				f.pendingLogin(t, "s1", time.Now())
				f.provider.On("ExchangeCode", mock.Anything, "abc", "verifier-s1").
					Return(nil, errors.New("invalid_grant"))
			},
			wantCode: "login_failed",
		},
		{
			name:  "profile fetch fails",
			query: "code=abc&state=s1",
			setup: func(t *testing.T, f *apiFixture) {
				f.pendingLogin(t, "s1", time.Now())
				f.provider.On("ExchangeCode", mock.Anything, "abc", "verifier-s1").
					Return(&oauth2.Token{AccessToken: "at"}, nil)
				f.provider.On("UserInfo", mock.Anything, mock.Anything).
					Return(nil, errors.New("status 500"))
			},
			wantCode: "login_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}

			w := f.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?"+tt.query, nil))

			assert.Equal(t, http.StatusFound, w.Code)
			location, err := url.Parse(w.Header().Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "localhost:5173", location.Host)
			assert.Equal(t, "/", location.Path)
			assert.Equal(t, tt.wantCode, location.Query().Get("error"))
			assert.Nil(t, sessionCookie(w))
		})
	}
}

func TestCallbackHandler_Success(t *testing.T) {
	f := newAPIFixture(t)
	f.pendingLogin(t, "s1", time.Now())

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	f.provider.On("ExchangeCode", mock.Anything, "abc", "verifier-s1").
		Return(&oauth2.Token{AccessToken: "mal-access", RefreshToken: "mal-refresh", Expiry: expiry}, nil)
	f.provider.On("UserInfo", mock.Anything, mock.Anything).
		Return(&idp.UserInfo{ProviderType: "mal", ID: 42, Name: "shinji", Picture: "https://cdn/p.jpg"}, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=s1", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testWebURL+"/home", w.Header().Get("Location"))

	c := sessionCookie(w)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	claims, err := f.sessions.Verify(c.Value)
	require.NoError(t, err)
	assert.Equal(t, "shinji", claims.Username)

	user, err := f.store.GetUser(context.Background(), claims.UserID())
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.MALID)
	assert.True(t, user.IsNewUser())

	token, err := f.store.GetProviderToken(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "mal-access", token.AccessToken)
	assert.Equal(t, "mal-refresh", token.RefreshToken)
	assert.True(t, expiry.Equal(token.ExpiresAt))

	// the state is single use
	w = f.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=s1", nil))
	location, _ := url.Parse(w.Header().Get("Location"))
	assert.Equal(t, "invalid_state", location.Query().Get("error"))
}

func TestCallbackHandler_ReturningUserKeepsID(t *testing.T) {
	f := newAPIFixture(t)
	f.provider.On("ExchangeCode", mock.Anything, "abc", mock.Anything).
		Return(&oauth2.Token{AccessToken: "at"}, nil)
	f.provider.On("UserInfo", mock.Anything, mock.Anything).
		Return(&idp.UserInfo{ID: 7, Name: "asuka"}, nil).Once()
	f.provider.On("UserInfo", mock.Anything, mock.Anything).
		Return(&idp.UserInfo{ID: 7, Name: "asuka_langley"}, nil).Once()

	var ids []string
	for _, state := range []string{"first", "second"} {
		f.pendingLogin(t, state, time.Now())
		w := f.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state="+state, nil))
		require.Equal(t, testWebURL+"/home", w.Header().Get("Location"))

		claims, err := f.sessions.Verify(sessionCookie(w).Value)
		require.NoError(t, err)
		ids = append(ids, claims.UserID())
	}

	assert.Equal(t, ids[0], ids[1])
	user, err := f.store.GetUser(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "asuka_langley", user.Username)
}

func TestOAuthHandler_RateLimited(t *testing.T) {
	f := newAPIFixture(t)
	f.provider.On("AuthURL", mock.Anything, mock.Anything).Return("https://mal/authorize")

	cfg := config.Config{Auth: config.AuthConfig{LoginRateLimit: 2}, Web: config.WebConfig{BaseURL: testWebURL}}
	router := NewAPIRouter(cfg, APIDeps{Auth: f.auth, Session: NewSessionHandlers(f.store), Sessions: f.sessions})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/oauth", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusFound, http.StatusFound, http.StatusTooManyRequests}, codes)
}
