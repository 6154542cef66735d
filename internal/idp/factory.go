package idp

import (
	"fmt"

	"github.com/animeswipe/animeswipe/internal/config"
)

// NewProvider creates the MyAnimeList provider from the auth config.
func NewProvider(cfg config.AuthConfig) (Provider, error) {
	if cfg.MALClientID == "" {
		return nil, fmt.Errorf("malClientId is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("redirectUri is required")
	}
	return NewMALProvider(MALConfig{
		ClientID:     string(cfg.MALClientID),
		ClientSecret: string(cfg.MALClientSecret),
		RedirectURI:  cfg.RedirectURI,
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     cfg.TokenURL,
		UserInfoURL:  cfg.UserInfoURL,
	}), nil
}
