package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/animeswipe/animeswipe/internal/cookie"
	"github.com/animeswipe/animeswipe/internal/ioutil"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/urlutil"
)

const (
	// DefaultTimeout bounds each probe call
	DefaultTimeout = 10 * time.Second

	sessionPath = "/api/session"
	profilePath = "/api/user"

	maxBodyBytes = 64 << 10
)

// Client calls the API's session endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a probe client for the API at baseURL. A zero timeout
// means DefaultTimeout, a nil httpClient means a client that never follows
// redirects.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, timeout: timeout}
}

// Bind returns probes that act as the browser that sent r
func (c *Client) Bind(r *http.Request) *Probes {
	return &Probes{client: c, browser: r}
}

// Probes are SessionProbe and ProfileProbe for one browser request
type Probes struct {
	client  *Client
	browser *http.Request
}

// CheckSession asks /api/session who the browser is.
func (p *Probes) CheckSession(ctx context.Context) (Identity, error) {
	var body struct {
		User *Identity `json:"user"`
	}

	status, err := p.get(ctx, sessionPath, &body)
	if err != nil {
		return Identity{}, err
	}
	switch {
	case status >= 400 && status < 500:
		return Identity{}, ErrNoSession
	case body.User == nil:
		return Identity{}, ErrNoSession
	}
	return *body.User, nil
}

// CheckProfile asks /api/user whether the user still has to onboard. A body
// without a boolean is_new_user falls back to a returning user and is logged
// as an anomaly.
func (p *Probes) CheckProfile(ctx context.Context) (Profile, error) {
	var body struct {
		IsNewUser *bool `json:"is_new_user"`
	}

	status, err := p.get(ctx, profilePath, &body)
	if err != nil {
		if KindOf(err) == ProtocolError {
			return Profile{Anomalous: true}, nil
		}
		return Profile{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return Profile{}, ErrNoSession
	}
	if status >= 400 {
		log.LogAnomaly("probe", "Unexpected profile status, treating as returning user", map[string]any{
			"endpoint": profilePath,
			"status":   status,
		})
		return Profile{Anomalous: true}, nil
	}
	if body.IsNewUser == nil {
		log.LogAnomaly("probe", "Profile response has no is_new_user, treating as returning user", map[string]any{
			"endpoint": profilePath,
		})
		return Profile{Anomalous: true}, nil
	}
	return Profile{IsNewUser: *body.IsNewUser}, nil
}

// get performs the call and decodes a 2xx body into out. It returns the
// status for 4xx answers without decoding. Transport failures, timeouts and
// 5xx become NetworkError, anything undecodable becomes ProtocolError.
func (p *Probes) get(ctx context.Context, path string, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.client.timeout)
	defer cancel()

	target, err := urlutil.JoinPath(p.client.baseURL, path)
	if err != nil {
		return 0, &Error{Kind: NetworkError, Endpoint: path, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, &Error{Kind: NetworkError, Endpoint: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	cookie.Forward(req, p.browser)

	start := time.Now()
	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", p.client.timeout, err)
		}
		return 0, &Error{Kind: NetworkError, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	log.LogTraceWithFields("probe", "Probe answered", map[string]any{
		"endpoint": path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	switch {
	case resp.StatusCode >= 500:
		return resp.StatusCode, &Error{
			Kind:     NetworkError,
			Endpoint: path,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 256)),
		}
	case resp.StatusCode >= 400:
		return resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.StatusCode, p.protocolError(path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := ioutil.DecodeLimited(resp.Body, maxBodyBytes, out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return resp.StatusCode, &Error{Kind: NetworkError, Endpoint: path, Err: err}
		}
		return resp.StatusCode, p.protocolError(path, err)
	}
	return resp.StatusCode, nil
}

func (p *Probes) protocolError(path string, err error) error {
	log.LogAnomaly("probe", "Malformed API response", map[string]any{
		"endpoint": path,
		"error":    err.Error(),
	})
	return &Error{Kind: ProtocolError, Endpoint: path, Err: err}
}
