package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/animeswipe/animeswipe/internal/cookie"
	jsonwriter "github.com/animeswipe/animeswipe/internal/json"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/session"
	"github.com/animeswipe/animeswipe/internal/usercontext"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// NewCORSMiddleware allows credentialed requests from the given origins. An
// empty list allows any origin without credentials.
func NewCORSMiddleware(allowedOrigins []string) MiddlewareFunc {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: len(allowedOrigins) > 0,
		MaxAge:           3600,
	})
}

// NewRateLimitMiddleware limits requests per client IP
func NewRateLimitMiddleware(limit int, window time.Duration) MiddlewareFunc {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.LogWarnWithFields("ratelimit", "Rate limit exceeded", map[string]any{
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})
			jsonwriter.WriteTooManyRequests(w, "Too many login attempts, try again later")
		}),
	)
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for interface detection
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher. The page service streams the loading shell
// through it.
func (r *responseWriterDelegator) Flush() {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.Flusher = (*responseWriterDelegator)(nil)

// NewRequestIDMiddleware tags each request with an ID, reusing a well-formed
// X-Request-ID from the caller
func NewRequestIDMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(usercontext.WithRequestID(r.Context(), id)))
		})
	}
}

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}
			if id := usercontext.GetRequestID(r.Context()); id != "" {
				fields["request_id"] = id
			}
			// the callback query carries the authorization code
			if r.URL.RawQuery != "" && r.URL.Path != "/oauth/callback" {
				fields["query"] = r.URL.RawQuery
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.LogErrorWithFields(prefix, "Recovered from panic", map[string]any{
						"panic":      err,
						"path":       r.URL.Path,
						"request_id": usercontext.GetRequestID(r.Context()),
					})
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewSessionMiddleware resolves the session cookie into a user on the
// request context. Requests without a valid session pass through
// anonymously, and an unusable cookie is cleared.
func NewSessionMiddleware(sessions *session.Manager) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := cookie.GetSession(r)
			if err != nil || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := sessions.Verify(token)
			if err != nil {
				level := log.LogDebugWithFields
				if !errors.Is(err, session.ErrExpiredToken) {
					level = log.LogWarnWithFields
				}
				level("session", "Rejected session cookie", map[string]any{
					"error":      err.Error(),
					"request_id": usercontext.GetRequestID(r.Context()),
				})
				cookie.ClearSession(w)
				next.ServeHTTP(w, r)
				return
			}

			ctx := usercontext.WithUser(r.Context(), usercontext.User{
				ID:       claims.UserID(),
				Username: claims.Username,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests that NewSessionMiddleware left anonymous
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := usercontext.GetUser(r.Context()); !ok {
			jsonwriter.WriteUnauthorized(w, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}
