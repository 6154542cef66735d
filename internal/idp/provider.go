package idp

import (
	"context"

	"golang.org/x/oauth2"
)

// UserInfo represents the profile returned by the identity provider.
type UserInfo struct {
	ProviderType string `json:"provider_type"`
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Picture      string `json:"picture,omitempty"`
}

// Provider abstracts identity provider operations for an authorization code
// flow with PKCE.
type Provider interface {
	// Type returns the provider type identifier (e.g., "mal").
	Type() string

	// AuthURL generates the authorization URL. The verifier is sent as the
	// challenge, MAL only supports the "plain" method.
	AuthURL(state, codeVerifier string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// UserInfo fetches the profile of the token's owner.
	UserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error)
}
