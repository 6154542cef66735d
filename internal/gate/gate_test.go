package gate

import (
	"context"
	"testing"

	"github.com/animeswipe/animeswipe/internal/bootstrap"
	"github.com/stretchr/testify/assert"
)

var identity = bootstrap.Identity{ID: "1", Username: "a"}

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		state bootstrap.AuthState
		route string
		want  Decision
	}{
		{"unknown on home", bootstrap.Unknown{}, "/home", Decision{ShowLoading, "/home"}},
		{"checking on onboarding", bootstrap.Checking{}, "/onboarding", Decision{ShowLoading, "/onboarding"}},
		{"checking on unknown route", bootstrap.Checking{}, "/nope", Decision{ShowLoading, "/nope"}},
		{"nil state", nil, "/home", Decision{ShowLoading, "/home"}},

		{"anonymous on landing", bootstrap.Unauthenticated{}, "/", Decision{Render, "/"}},
		{"anonymous on home", bootstrap.Unauthenticated{}, "/home", Decision{Redirect, "/"}},
		{"anonymous on onboarding", bootstrap.Unauthenticated{}, "/onboarding/", Decision{Redirect, "/"}},
		{"anonymous on unknown route", bootstrap.Unauthenticated{}, "/settings", Decision{Redirect, "/"}},
		{"failed on home", bootstrap.Failed{Kind: bootstrap.NetworkError}, "/home", Decision{Redirect, "/"}},

		{"authenticated on home", bootstrap.Authenticated{Identity: identity}, "/home", Decision{Render, "/home"}},
		{"authenticated with trailing slash", bootstrap.Authenticated{Identity: identity}, "/home/", Decision{Render, "/home"}},
		{"new user on onboarding", bootstrap.Authenticated{Identity: identity, IsNewUser: true}, "/onboarding", Decision{Render, "/onboarding"}},
		{"authenticated on landing", bootstrap.Authenticated{Identity: identity}, "/", Decision{Render, "/"}},
		{"authenticated on unknown route", bootstrap.Authenticated{Identity: identity}, "/settings", Decision{Redirect, "/home"}},
		{"authenticated on empty path", bootstrap.Authenticated{Identity: identity}, "", Decision{Render, "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, tt.route))
		})
	}
}

func TestDecide_LoadingOnlyWhileUnsettled(t *testing.T) {
	states := []bootstrap.AuthState{
		bootstrap.Unknown{},
		bootstrap.Checking{},
		bootstrap.Unauthenticated{},
		bootstrap.Authenticated{Identity: identity},
		bootstrap.Authenticated{Identity: identity, IsNewUser: true},
		bootstrap.Failed{Kind: bootstrap.ProtocolError},
	}
	routes := []string{"/", "/home", "/onboarding", "/missing", "/home/"}

	for _, state := range states {
		for _, route := range routes {
			loading := Decide(state, route).Action == ShowLoading
			assert.Equal(t, !bootstrap.Settled(state), loading, "state %s route %s", state, route)
		}
	}
}

func TestStateContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, bootstrap.Unknown{}, StateFrom(ctx))
	_, ok := IdentityFrom(ctx)
	assert.False(t, ok)

	ctx = WithState(ctx, bootstrap.Authenticated{Identity: identity, IsNewUser: true})
	assert.Equal(t, bootstrap.Authenticated{Identity: identity, IsNewUser: true}, StateFrom(ctx))
	got, ok := IdentityFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, identity, got)

	ctx = WithState(context.Background(), bootstrap.Unauthenticated{})
	_, ok = IdentityFrom(ctx)
	assert.False(t, ok)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("/"))
	assert.True(t, Known("/home/"))
	assert.True(t, Known("/onboarding"))
	assert.False(t, Known("/oauth"))
	assert.Equal(t, "redirect", Redirect.String())
}
