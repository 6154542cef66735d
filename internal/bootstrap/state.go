// Package bootstrap resolves who is behind a page load. A Bootstrapper runs
// the session probe, then the profile probe, settles on an AuthState and
// issues at most one navigation.
package bootstrap

import (
	"github.com/animeswipe/animeswipe/internal/probe"
)

// Identity is the authenticated user. Its ID is opaque.
type Identity = probe.Identity

// ErrorKind classifies a failed probe
type ErrorKind = probe.ErrorKind

const (
	NetworkError  = probe.NetworkError
	ProtocolError = probe.ProtocolError
)

// AuthState is one of Unknown, Checking, Unauthenticated, Authenticated or
// Failed. No other type implements it.
type AuthState interface {
	authState()
	String() string
}

// Unknown is the state before Run
type Unknown struct{}

// Checking means a probe is in flight
type Checking struct{}

// Unauthenticated means there is no usable session
type Unauthenticated struct{}

// Authenticated carries the user and whether onboarding is still pending
type Authenticated struct {
	Identity  Identity
	IsNewUser bool
}

// Failed is a probe failure seen by a consumer of the state. The
// Bootstrapper itself resolves failures to Unauthenticated.
type Failed struct {
	Kind ErrorKind
}

func (Unknown) authState()         {}
func (Checking) authState()        {}
func (Unauthenticated) authState() {}
func (Authenticated) authState()   {}
func (Failed) authState()          {}

func (Unknown) String() string         { return "unknown" }
func (Checking) String() string        { return "checking" }
func (Unauthenticated) String() string { return "unauthenticated" }
func (Failed) String() string          { return "failed" }

func (a Authenticated) String() string {
	if a.IsNewUser {
		return "authenticated(new)"
	}
	return "authenticated"
}

// Settled reports whether s is a terminal state
func Settled(s AuthState) bool {
	switch s.(type) {
	case Unauthenticated, Authenticated, Failed:
		return true
	default:
		return false
	}
}
