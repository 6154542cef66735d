package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/animeswipe/animeswipe/internal/cookie"
	"github.com/animeswipe/animeswipe/internal/ioutil"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/urlutil"
)

// postAPI makes a state-changing API call as the browser behind r. It
// returns the status and the Set-Cookie headers of the answer.
func (h *Handlers) postAPI(ctx context.Context, browser *http.Request, path string) (int, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	target, err := urlutil.JoinPath(h.apiURL, path)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	cookie.Forward(req, browser)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.LogDebugWithFields("web", "API call rejected", map[string]any{
			"path":   path,
			"status": resp.StatusCode,
			"body":   ioutil.ReadLimited(resp.Body, 256),
		})
	}
	return resp.StatusCode, resp.Header.Values("Set-Cookie"), nil
}
