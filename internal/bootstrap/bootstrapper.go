package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/probe"
	"github.com/animeswipe/animeswipe/internal/urlutil"
)

// Routes the bootstrapper navigates to
const (
	RouteLanding    = "/"
	RouteOnboarding = "/onboarding"
	RouteHome       = "/home"
)

// SessionProbe asks the API who the browser is
type SessionProbe interface {
	CheckSession(ctx context.Context) (Identity, error)
}

// ProfileProbe asks the API whether the user still has to onboard
type ProfileProbe interface {
	CheckProfile(ctx context.Context) (probe.Profile, error)
}

// Navigator moves the browser to route, replacing the current history entry.
// Replace is called with the Bootstrapper's lock held and must not call back
// into it.
type Navigator interface {
	Replace(route string)
}

// Bootstrapper owns the AuthState of a single page load
type Bootstrapper struct {
	session SessionProbe
	profile ProfileProbe
	nav     Navigator
	route   string

	mu        sync.Mutex
	state     AuthState
	started   bool
	detached  bool
	navigated bool

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Bootstrapper for a page load of currentRoute
func New(session SessionProbe, profile ProfileProbe, nav Navigator, currentRoute string) *Bootstrapper {
	return &Bootstrapper{
		session: session,
		profile: profile,
		nav:     nav,
		route:   urlutil.CanonicalPath(currentRoute),
		state:   Unknown{},
		done:    make(chan struct{}),
	}
}

// Run performs the bootstrap pass. Only the first call does anything.
// Cancelling ctx detaches the instance like Teardown.
func (b *Bootstrapper) Run(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.detached {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.state = Checking{}
	b.mu.Unlock()
	defer b.finish()

	identity, err := b.session.CheckSession(ctx)
	if err != nil {
		b.logFailure("session", err)
		b.settle(ctx, Unauthenticated{}, "")
		return
	}
	if !b.live(ctx) {
		return
	}

	profile, err := b.profile.CheckProfile(ctx)
	if err != nil {
		b.logFailure("profile", err)
		b.settle(ctx, Unauthenticated{}, "")
		return
	}

	target := RouteHome
	if profile.IsNewUser {
		target = RouteOnboarding
	}
	b.settle(ctx, Authenticated{Identity: identity, IsNewUser: profile.IsNewUser}, target)
}

// State returns the current state
func (b *Bootstrapper) State() AuthState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Done is closed once Run has finished or the instance was torn down
func (b *Bootstrapper) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until Done and returns the state at that point
func (b *Bootstrapper) Wait(ctx context.Context) (AuthState, error) {
	select {
	case <-b.done:
		return b.State(), nil
	case <-ctx.Done():
		return b.State(), ctx.Err()
	}
}

// Teardown detaches the instance. Probe results that arrive afterwards are
// discarded and no navigation happens.
func (b *Bootstrapper) Teardown() {
	b.mu.Lock()
	b.detached = true
	b.mu.Unlock()
	b.finish()
}

func (b *Bootstrapper) finish() {
	b.doneOnce.Do(func() { close(b.done) })
}

func (b *Bootstrapper) live(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.detached && ctx.Err() == nil
}

// settle stores the terminal state and, if target differs from the current
// route, navigates there. Nothing happens once the instance is detached.
func (b *Bootstrapper) settle(ctx context.Context, state AuthState, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.detached || ctx.Err() != nil {
		b.detached = true
		log.LogDebugWithFields("bootstrap", "Discarding result of detached bootstrap", map[string]any{
			"route": b.route,
			"state": state.String(),
		})
		return
	}

	b.state = state
	log.LogDebugWithFields("bootstrap", "Bootstrap settled", map[string]any{
		"route": b.route,
		"state": state.String(),
	})

	if target == "" || target == b.route || b.navigated || b.nav == nil {
		return
	}
	b.navigated = true
	b.nav.Replace(target)
}

func (b *Bootstrapper) logFailure(probeName string, err error) {
	fields := map[string]any{
		"probe": probeName,
		"route": b.route,
		"error": err.Error(),
	}
	switch {
	case errors.Is(err, probe.ErrNoSession):
		log.LogDebugWithFields("bootstrap", "No session", fields)
	case errors.Is(err, context.Canceled):
		log.LogDebugWithFields("bootstrap", "Probe cancelled", fields)
	case probe.KindOf(err) == ProtocolError:
		// already recorded as an anomaly by the probe
		log.LogDebugWithFields("bootstrap", "Probe answered outside its contract", fields)
	default:
		log.LogWarnWithFields("bootstrap", "Probe failed, treating as unauthenticated", fields)
	}
}
