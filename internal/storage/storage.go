package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist
var ErrUserNotFound = errors.New("user not found")

// ErrLoginRequestNotFound is returned when no pending login matches a state
var ErrLoginRequestNotFound = errors.New("login request not found")

// ErrProviderTokenNotFound is returned when a user has no stored MAL token
var ErrProviderTokenNotFound = errors.New("provider token not found")

// LoginRequest is a pending OAuth round-trip, created when the browser is sent
// to MyAnimeList and consumed exactly once by the callback.
type LoginRequest struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the request is older than maxAge at now.
func (r *LoginRequest) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.CreatedAt) > maxAge
}

// MALProfile is the subset of the MyAnimeList profile a user is keyed on
type MALProfile struct {
	ID      int64
	Name    string
	Picture string
}

// User is an account provisioned from a MyAnimeList identity
type User struct {
	ID        string    `json:"id"`
	MALID     int64     `json:"mal_id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Onboarded bool      `json:"onboarded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsNewUser reports whether the user still has to go through onboarding
func (u *User) IsNewUser() bool {
	return !u.Onboarded
}

// ProviderToken holds the MyAnimeList OAuth tokens of a user. Backends that
// persist outside the process store both token values encrypted.
type ProviderToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoginRequestStore keeps pending logins between /oauth and /oauth/callback
type LoginRequestStore interface {
	SaveLoginRequest(ctx context.Context, req *LoginRequest) error
	// TakeLoginRequest returns and deletes the request for state (one-time use)
	TakeLoginRequest(ctx context.Context, state string) (*LoginRequest, error)
	// CleanupExpiredLoginRequests deletes requests created before cutoff
	CleanupExpiredLoginRequests(ctx context.Context, cutoff time.Time) (int, error)
}

// UserStore keeps provisioned users and their provider tokens
type UserStore interface {
	// UpsertMALUser creates the user for a MAL id or refreshes its profile.
	// created is true when a new user was provisioned.
	UpsertMALUser(ctx context.Context, profile MALProfile) (user *User, created bool, err error)
	GetUser(ctx context.Context, id string) (*User, error)
	CompleteOnboarding(ctx context.Context, id string) error
	SetProviderToken(ctx context.Context, userID string, token *ProviderToken) error
	GetProviderToken(ctx context.Context, userID string) (*ProviderToken, error)
}

// Storage combines all storage capabilities needed by the API
type Storage interface {
	LoginRequestStore
	UserStore
	Close() error
}
