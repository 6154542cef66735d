// Package gate decides what a page load may show for a given AuthState.
package gate

import (
	"context"

	"github.com/animeswipe/animeswipe/internal/bootstrap"
	"github.com/animeswipe/animeswipe/internal/urlutil"
)

// Action is what the page service does with a request
type Action int

const (
	// ShowLoading renders the loading indicator and nothing else
	ShowLoading Action = iota + 1
	// Redirect replaces the current location with Target
	Redirect
	// Render renders the requested route
	Render
)

func (a Action) String() string {
	switch a {
	case ShowLoading:
		return "show_loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Decide
type Decision struct {
	Action Action
	// Target is the canonical route to render or redirect to
	Target string
}

var routes = map[string]bool{
	bootstrap.RouteLanding:    true,
	bootstrap.RouteOnboarding: true,
	bootstrap.RouteHome:       true,
}

// Known reports whether route is one of the page routes
func Known(route string) bool {
	return routes[urlutil.CanonicalPath(route)]
}

// Decide maps a state and a requested route to a Decision. The landing route
// is public. A nil state is treated as Unknown.
func Decide(state bootstrap.AuthState, route string) Decision {
	route = urlutil.CanonicalPath(route)

	switch state.(type) {
	case bootstrap.Authenticated:
		if !routes[route] {
			return Decision{Action: Redirect, Target: bootstrap.RouteHome}
		}
		return Decision{Action: Render, Target: route}
	case bootstrap.Unauthenticated, bootstrap.Failed:
		if route == bootstrap.RouteLanding {
			return Decision{Action: Render, Target: route}
		}
		return Decision{Action: Redirect, Target: bootstrap.RouteLanding}
	default:
		return Decision{Action: ShowLoading, Target: route}
	}
}

type contextKey string

const stateKey contextKey = "gate.state"

// WithState attaches the settled state of a page load to ctx
func WithState(ctx context.Context, state bootstrap.AuthState) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

// StateFrom returns the state attached by WithState, or Unknown
func StateFrom(ctx context.Context) bootstrap.AuthState {
	if state, ok := ctx.Value(stateKey).(bootstrap.AuthState); ok {
		return state
	}
	return bootstrap.Unknown{}
}

// IdentityFrom returns the authenticated identity attached to ctx
func IdentityFrom(ctx context.Context) (bootstrap.Identity, bool) {
	if auth, ok := StateFrom(ctx).(bootstrap.Authenticated); ok {
		return auth.Identity, true
	}
	return bootstrap.Identity{}, false
}
