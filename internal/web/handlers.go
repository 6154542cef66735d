// Package web is the page service. Every page load runs a fresh
// bootstrap.Bootstrapper against the API and renders what the gate allows.
package web

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/animeswipe/animeswipe/internal/bootstrap"
	"github.com/animeswipe/animeswipe/internal/config"
	"github.com/animeswipe/animeswipe/internal/gate"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/loginerr"
	"github.com/animeswipe/animeswipe/internal/probe"
	"github.com/animeswipe/animeswipe/internal/urlutil"
)

// pageNavigator keeps the bootstrapper's navigation so the handler can turn
// it into a redirect or a location.replace
type pageNavigator struct {
	mu     sync.Mutex
	target string
}

func (n *pageNavigator) Replace(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.target == "" {
		n.target = route
	}
}

func (n *pageNavigator) Target() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

// Handlers serves the pages and the browser-facing actions
type Handlers struct {
	apiURL     string
	probes     *probe.Client
	httpClient *http.Client
	timeout    time.Duration
	paintDelay time.Duration
}

// NewHandlers creates the page handlers. A nil httpClient means a client
// that never follows redirects.
func NewHandlers(cfg config.WebConfig, httpClient *http.Client) *Handlers {
	if httpClient == nil {
		httpClient = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Handlers{
		apiURL:     cfg.APIURL,
		probes:     probe.NewClient(cfg.APIURL, cfg.ProbeTimeout, httpClient),
		httpClient: httpClient,
		timeout:    cfg.ProbeTimeout,
		paintDelay: cfg.PaintDelay,
	}
}

// PageHandler bootstraps the session of a page load. If the bootstrap settles
// within the paint delay the answer is a plain redirect or page. Otherwise
// the loading shell is streamed first and the outcome follows in the same
// response.
func (h *Handlers) PageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	route := urlutil.CanonicalPath(r.URL.Path)
	nav := &pageNavigator{}
	probes := h.probes.Bind(r)

	b := bootstrap.New(probes, probes, nav, route)
	defer b.Teardown()
	go b.Run(ctx)

	w.Header().Set("Cache-Control", "no-store")
	notifier := loginerr.NewNotifier()

	paint := time.NewTimer(h.paintDelay)
	defer paint.Stop()

	select {
	case <-b.Done():
		if ctx.Err() != nil {
			return
		}
		state := b.State()
		if target, ok := resolveRedirect(state, route, nav); ok {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		r = r.WithContext(gate.WithState(ctx, state))
		h.writePage(w, r, route, notifier)
		return
	case <-ctx.Done():
		return
	case <-paint.C:
	}

	h.streamShell(w, route)

	select {
	case <-b.Done():
	case <-ctx.Done():
		return
	}
	if ctx.Err() != nil {
		return
	}

	state := b.State()
	if target, ok := resolveRedirect(state, route, nav); ok {
		h.execute(w, "navigate", target)
	} else {
		r = r.WithContext(gate.WithState(ctx, state))
		h.writeContent(w, r, route, notifier)
		h.execute(w, "loaded", nil)
	}
	h.execute(w, "foot", nil)
}

// resolveRedirect reports where a settled page load has to go instead of
// rendering route. The bootstrapper's navigation wins over the gate.
func resolveRedirect(state bootstrap.AuthState, route string, nav *pageNavigator) (string, bool) {
	if target := nav.Target(); target != "" {
		return target, true
	}
	decision := gate.Decide(state, route)
	if decision.Action == gate.Redirect {
		return decision.Target, true
	}
	return "", false
}

func (h *Handlers) writePage(w http.ResponseWriter, r *http.Request, route string, notifier *loginerr.Notifier) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.execute(w, "head", HeadData{Title: pageTitles[route]})
	h.writeContent(w, r, route, notifier)
	h.execute(w, "foot", nil)
}

func (h *Handlers) streamShell(w http.ResponseWriter, route string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.execute(w, "head", HeadData{Title: pageTitles[route]})
	h.execute(w, "loading", nil)
	if err := http.NewResponseController(w).Flush(); err != nil {
		log.LogDebugWithFields("web", "Response does not support flushing", map[string]any{
			"error": err.Error(),
		})
	}
}

// writeContent renders the view of route. Views only see the state through
// the request context.
func (h *Handlers) writeContent(w io.Writer, r *http.Request, route string, notifier *loginerr.Notifier) {
	switch route {
	case bootstrap.RouteLanding:
		msg, _ := notifier.Notify(r.URL.RawQuery)
		h.execute(w, "landing", LandingPageData{Notification: msg})
	case bootstrap.RouteHome, bootstrap.RouteOnboarding:
		identity, ok := gate.IdentityFrom(r.Context())
		if !ok {
			log.LogAnomaly("web", "Rendering a protected page without identity", map[string]any{
				"route": route,
			})
			return
		}
		name := "home"
		if route == bootstrap.RouteOnboarding {
			name = "onboarding"
		}
		h.execute(w, name, UserPageData{Username: identity.Username})
	}
}

func (h *Handlers) execute(w io.Writer, name string, data any) {
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		log.LogErrorWithFields("web", "Failed to render template", map[string]any{
			"template": name,
			"error":    err.Error(),
		})
	}
}

// LoginHandler starts the OAuth round-trip with a full-page navigation to
// the API
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, urlutil.MustJoinPath(h.apiURL, "oauth"), http.StatusSeeOther)
}

// LogoutHandler asks the API to end the session and relays its cookie
// changes to the browser
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	status, setCookies, err := h.postAPI(r.Context(), r, "/api/logout")
	if err != nil || status != http.StatusNoContent {
		fields := map[string]any{"status": status}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.LogErrorWithFields("web", "Logout failed", fields)
	}
	for _, c := range setCookies {
		w.Header().Add("Set-Cookie", c)
	}
	http.Redirect(w, r, bootstrap.RouteLanding, http.StatusSeeOther)
}

// OnboardingHandler completes onboarding and continues to home
func (h *Handlers) OnboardingHandler(w http.ResponseWriter, r *http.Request) {
	status, _, err := h.postAPI(r.Context(), r, "/api/user/onboarding")
	switch {
	case err != nil:
		log.LogErrorWithFields("web", "Onboarding request failed", map[string]any{
			"error": err.Error(),
		})
		http.Redirect(w, r, bootstrap.RouteOnboarding, http.StatusSeeOther)
	case status == http.StatusNoContent:
		http.Redirect(w, r, bootstrap.RouteHome, http.StatusSeeOther)
	case status == http.StatusUnauthorized:
		http.Redirect(w, r, bootstrap.RouteLanding, http.StatusSeeOther)
	default:
		log.LogErrorWithFields("web", "Unexpected onboarding status", map[string]any{
			"status": status,
		})
		http.Redirect(w, r, bootstrap.RouteOnboarding, http.StatusSeeOther)
	}
}

var (
	_ bootstrap.Navigator    = (*pageNavigator)(nil)
	_ bootstrap.SessionProbe = (*probe.Probes)(nil)
	_ bootstrap.ProfileProbe = (*probe.Probes)(nil)
)
