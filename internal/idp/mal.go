package idp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/animeswipe/animeswipe/internal/ioutil"
	"golang.org/x/oauth2"
)

const (
	malAuthorizeURL = "https://myanimelist.net/v1/oauth2/authorize"
	malTokenURL     = "https://myanimelist.net/v1/oauth2/token"
	malUserInfoURL  = "https://api.myanimelist.net/v2/users/@me"

	maxUserInfoBytes = 1 << 20
)

// MALConfig configures the MyAnimeList provider. Empty URLs fall back to the
// public MAL endpoints.
type MALConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
}

// MALProvider implements the Provider interface for MyAnimeList OAuth.
// MAL sends client credentials in the form body and only supports the
// "plain" PKCE method.
type MALProvider struct {
	config      oauth2.Config
	userInfoURL string
}

type malUserResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// NewMALProvider creates a new MyAnimeList OAuth provider.
func NewMALProvider(cfg MALConfig) *MALProvider {
	authURL, tokenURL, userInfoURL := cfg.AuthorizeURL, cfg.TokenURL, cfg.UserInfoURL
	if authURL == "" {
		authURL = malAuthorizeURL
	}
	if tokenURL == "" {
		tokenURL = malTokenURL
	}
	if userInfoURL == "" {
		userInfoURL = malUserInfoURL
	}

	return &MALProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: userInfoURL,
	}
}

// Type returns the provider type.
func (p *MALProvider) Type() string {
	return "mal"
}

// AuthURL generates the authorization URL.
func (p *MALProvider) AuthURL(state, codeVerifier string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeVerifier),
		oauth2.SetAuthURLParam("code_challenge_method", "plain"),
	)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *MALProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// UserInfo fetches the profile from MAL's users/@me endpoint.
func (p *MALProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := p.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user info request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user info: status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 512))
	}

	var malUser malUserResponse
	if err := ioutil.DecodeLimited(resp.Body, maxUserInfoBytes, &malUser); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if malUser.ID == 0 {
		return nil, fmt.Errorf("user info has no id")
	}

	return &UserInfo{
		ProviderType: "mal",
		ID:           malUser.ID,
		Name:         malUser.Name,
		Picture:      malUser.Picture,
	}, nil
}
